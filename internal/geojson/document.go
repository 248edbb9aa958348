// Package geojson reads, enriches and writes GeoJSON feature collections.
//
// Only feature properties are decoded. Geometry and every other member of a
// feature or of the collection is kept as raw JSON and written back as it
// was read.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

const (
	memberFeatures   = "features"
	memberProperties = "properties"
)

// FeatureCollection is a GeoJSON document with a top-level features array.
type FeatureCollection struct {
	Features []*Feature
	members  map[string]json.RawMessage
}

// Feature is one element of the features array.
type Feature struct {
	// Properties is nil when the source had "properties": null.
	Properties map[string]any
	members    map[string]json.RawMessage
	hasProps   bool
}

// Member returns a raw member of the feature other than properties, e.g.
// "geometry".
func (f *Feature) Member(name string) (json.RawMessage, bool) {
	raw, ok := f.members[name]
	return raw, ok
}

// Member returns a raw top-level member other than features, e.g. "crs".
func (fc *FeatureCollection) Member(name string) (json.RawMessage, bool) {
	raw, ok := fc.members[name]
	return raw, ok
}

func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	rawFeatures, ok := members[memberFeatures]
	if !ok {
		return errors.New("geojson: document has no features member")
	}
	delete(members, memberFeatures)

	var items []json.RawMessage
	if err := json.Unmarshal(rawFeatures, &items); err != nil {
		return fmt.Errorf("geojson: features: %w", err)
	}

	features := make([]*Feature, 0, len(items))
	for i, item := range items {
		f := &Feature{}
		if err := f.UnmarshalJSON(item); err != nil {
			return fmt.Errorf("geojson: feature %d: %w", i, err)
		}
		features = append(features, f)
	}

	fc.Features = features
	fc.members = members
	return nil
}

func (fc *FeatureCollection) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(fc.members)+1)
	for k, v := range fc.members {
		out[k] = v
	}

	features := make([]json.RawMessage, 0, len(fc.Features))
	for i, f := range fc.Features {
		raw, err := f.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("geojson: feature %d: %w", i, err)
		}
		features = append(features, raw)
	}
	raw, err := marshal(features)
	if err != nil {
		return nil, err
	}
	out[memberFeatures] = raw
	return marshal(out)
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}

	var props map[string]any
	if raw, ok := members[memberProperties]; ok {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&props); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		delete(members, memberProperties)
		f.hasProps = true
	}

	f.Properties = props
	f.members = members
	return nil
}

func (f *Feature) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.members)+1)
	for k, v := range f.members {
		out[k] = v
	}
	if f.hasProps || f.Properties != nil {
		props, err := marshal(f.Properties)
		if err != nil {
			return nil, fmt.Errorf("properties: %w", err)
		}
		out[memberProperties] = props
	}
	return marshal(out)
}

// marshal encodes v without escaping HTML characters, matching how the
// documents are written to disk.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode reads a feature collection from r.
func Decode(r io.Reader) (*FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc := &FeatureCollection{}
	if err := json.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}

// Encode writes fc to w as two-space indented UTF-8 JSON.
func Encode(w io.Writer, fc *FeatureCollection) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}

// Load reads the collection at path. A missing file is reported as
// domain.ErrMissingInput.
func Load(path string) (*FeatureCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("geojson %s: %w", path, domain.ErrMissingInput)
		}
		return nil, fmt.Errorf("open geojson: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Save replaces the file at path with fc. The document is written to a
// temporary file in the same directory and renamed into place, so readers
// never observe a partial document.
func Save(path string, fc *FeatureCollection) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp geojson: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := Encode(tmp, fc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp geojson: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp geojson: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace geojson: %w", err)
	}
	return nil
}
