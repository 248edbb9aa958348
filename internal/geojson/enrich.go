package geojson

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// Enricher writes node values onto features whose join property matches a
// node ID.
type Enricher struct {
	joinKey string
}

// NewEnricher returns an Enricher joining on the given property. An empty key
// selects domain.DefaultJoinKey.
func NewEnricher(joinKey string) *Enricher {
	if joinKey == "" {
		joinKey = domain.DefaultJoinKey
	}
	return &Enricher{joinKey: joinKey}
}

// JoinKey returns the property matched against node IDs.
func (e *Enricher) JoinKey() string {
	return e.joinKey
}

// Apply sets property on every feature whose join key has a value, and
// returns how many features were written. Existing values are overwritten;
// features without a match are left untouched.
func (e *Enricher) Apply(fc *FeatureCollection, property string, values *domain.NodeValues) int {
	if values.Len() == 0 {
		return 0
	}
	matched := 0
	for _, f := range fc.Features {
		id, ok := f.Key(e.joinKey)
		if !ok {
			continue
		}
		if v, ok := values.Get(id); ok {
			f.Properties[property] = v
			matched++
		}
	}
	return matched
}

// ApplyClasses writes the severity class onto flooded features. Only features
// that already carry a flood volume are eligible, so a stale class is never
// written to a feature that did not flood.
func (e *Enricher) ApplyClasses(fc *FeatureCollection, classes map[string]int) int {
	if len(classes) == 0 {
		return 0
	}
	matched := 0
	for _, f := range fc.Features {
		if _, flooded := f.Properties[domain.PropFloodVolume]; !flooded {
			continue
		}
		id, ok := f.Key(e.joinKey)
		if !ok {
			continue
		}
		if class, ok := classes[id]; ok {
			f.Properties[domain.PropClass] = class
			matched++
		}
	}
	return matched
}

// DeriveOutDepth sets OUT_DEPTH = MAX_DEPTH - WELLDEEP on every feature that
// has both. When either value cannot be read as a number OUT_DEPTH is set to
// null. It returns how many features got a number and how many got null.
func DeriveOutDepth(fc *FeatureCollection) (computed, failed int) {
	for _, f := range fc.Features {
		wellRaw, hasWell := f.Properties[domain.PropWellDepth]
		maxRaw, hasMax := f.Properties[domain.PropMaxDepth]
		if !hasWell || !hasMax {
			continue
		}

		well, okWell := Number(wellRaw)
		depth, okMax := Number(maxRaw)
		out := depth - well
		if !okWell || !okMax || math.IsNaN(out) || math.IsInf(out, 0) {
			f.Properties[domain.PropOutDepth] = nil
			failed++
			continue
		}
		f.Properties[domain.PropOutDepth] = out
		computed++
	}
	return computed, failed
}

// Key returns the feature's join value as a node ID. String values are used
// as they are; numeric values use their literal JSON text.
func (f *Feature) Key(name string) (string, bool) {
	switch v := f.Properties[name].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// Number reads a property value as a finite number. Numeric strings are
// accepted since upstream datasets sometimes store depths as text.
func Number(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
