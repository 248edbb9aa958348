package geojson

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

const fixture = "testdata/nodes.geojson"

func loadFixture(t *testing.T) *FeatureCollection {
	t.Helper()
	fc, err := Load(fixture)
	require.NoError(t, err)
	return fc
}

// generic decodes JSON into plain maps with exact numbers for comparison.
func generic(t *testing.T, data []byte) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestLoad_Fixture(t *testing.T) {
	fc := loadFixture(t)

	require.Len(t, fc.Features, 7)
	assert.Equal(t, "PSYS1272406", fc.Features[0].Properties["EXP_NO"])
	assert.Equal(t, json.Number("2.5"), fc.Features[0].Properties["WELLDEEP"])

	crs, ok := fc.Member("crs")
	require.True(t, ok)
	assert.Contains(t, string(crs), "EPSG::4547")

	geom, ok := fc.Features[0].Member("geometry")
	require.True(t, ok)
	assert.Contains(t, string(geom), "513204.118")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.geojson"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingInput)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"type": "FeatureCollection",`},
		{"no features", `{"type": "FeatureCollection"}`},
		{"features not an array", `{"features": {}}`},
		{"feature not an object", `{"features": [1]}`},
		{"properties not an object", `{"features": [{"properties": [1, 2]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestEncode_RoundTripPreservesDocument(t *testing.T) {
	original, err := os.ReadFile(fixture)
	require.NoError(t, err)

	fc, err := Decode(bytes.NewReader(original))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fc))

	if diff := cmp.Diff(generic(t, original), generic(t, buf.Bytes())); diff != "" {
		t.Fatalf("round trip changed the document (-want +got):\n%s", diff)
	}
}

func TestEncode_Format(t *testing.T) {
	fc, err := Decode(strings.NewReader(`{"features":[{"type":"Feature","properties":{"ROAD":"A & B <north>"},"geometry":null}]}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fc))
	out := buf.String()

	assert.Contains(t, out, `"A & B <north>"`, "HTML characters are written as-is")
	assert.True(t, strings.HasPrefix(out, "{\n  \"features\": ["), out)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestEncode_NullProperties(t *testing.T) {
	fc, err := Decode(strings.NewReader(`{"features":[{"type":"Feature","properties":null,"geometry":null}]}`))
	require.NoError(t, err)
	assert.Nil(t, fc.Features[0].Properties)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fc))
	assert.Contains(t, buf.String(), `"properties": null`)
}

func TestSave_ReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":[]}`), 0o600))

	fc := loadFixture(t)
	fc.Features[0].Properties[domain.PropMaxDepth] = 1.44
	require.NoError(t, Save(path, fc))

	saved, err := Load(path)
	require.NoError(t, err)
	require.Len(t, saved.Features, 7)
	assert.Equal(t, json.Number("1.44"), saved.Features[0].Properties[domain.PropMaxDepth])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestSave_MissingDirectory(t *testing.T) {
	fc := loadFixture(t)
	err := Save(filepath.Join(t.TempDir(), "missing", "out.geojson"), fc)
	require.Error(t, err)
}

func TestEncode_AbsentPropertiesStayAbsent(t *testing.T) {
	fc, err := Decode(strings.NewReader(`{"features":[{"type":"Feature","geometry":null}]}`))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fc))
	assert.NotContains(t, buf.String(), "properties")
}
