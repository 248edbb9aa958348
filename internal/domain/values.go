package domain

// NodeValues maps node IDs to values. Set overwrites an existing entry in
// place, so the last occurrence of an ID wins while iteration keeps the order
// in which IDs were first seen.
type NodeValues struct {
	ids    []string
	values map[string]float64
}

// NewNodeValues returns an empty mapping.
func NewNodeValues() *NodeValues {
	return &NodeValues{values: make(map[string]float64)}
}

// Set inserts id or overwrites its value.
func (n *NodeValues) Set(id string, v float64) {
	if _, ok := n.values[id]; !ok {
		n.ids = append(n.ids, id)
	}
	n.values[id] = v
}

// Get returns the value stored for id.
func (n *NodeValues) Get(id string) (float64, bool) {
	if n == nil {
		return 0, false
	}
	v, ok := n.values[id]
	return v, ok
}

// Len returns the number of distinct IDs.
func (n *NodeValues) Len() int {
	if n == nil {
		return 0
	}
	return len(n.ids)
}

// IDs returns the distinct IDs in first-seen order.
func (n *NodeValues) IDs() []string {
	if n == nil {
		return nil
	}
	out := make([]string, len(n.ids))
	copy(out, n.ids)
	return out
}

// Values returns the values in the same order as IDs.
func (n *NodeValues) Values() []float64 {
	if n == nil {
		return nil
	}
	out := make([]float64, len(n.ids))
	for i, id := range n.ids {
		out[i] = n.values[id]
	}
	return out
}

// DepthValues indexes depth records by node ID.
func DepthValues(records []DepthRecord) *NodeValues {
	nv := NewNodeValues()
	for _, r := range records {
		nv.Set(r.NodeID, r.Depth)
	}
	return nv
}

// FloodValues indexes flood records by node ID.
func FloodValues(records []FloodRecord) *NodeValues {
	nv := NewNodeValues()
	for _, r := range records {
		nv.Set(r.NodeID, r.Volume)
	}
	return nv
}
