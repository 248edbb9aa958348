// Package report extracts node tables from SWMM simulation reports.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// Section describes how one table is located in a report.
type Section struct {
	// Title is the text that opens the section, e.g. "Node Depth Summary".
	Title string
	// Header is the column header line that precedes the rows. It is compared
	// with runs of whitespace collapsed.
	Header string
	// End closes the section when it appears in a row line.
	End string
	// MinFields is the minimum token count of a data row.
	MinFields int
}

// Default sections for SI (CMS) reports.
var (
	DepthSection = Section{
		Title:     "Node Depth Summary",
		Header:    "Node Type Meters Meters",
		End:       "***",
		MinFields: 4,
	}
	FloodSection = Section{
		Title:     "Node Flooding Summary",
		Header:    "Node Flooded CMS days hr:min 10^6 ltr Meters",
		End:       "***",
		MinFields: 6,
	}
)

// floodVolumeField is the zero-based token index of "Total Flood Volume".
const floodVolumeField = 5

// maxLineSize bounds a single report line.
const maxLineSize = 1 << 20

// Result holds the records extracted from one report.
type Result struct {
	Depth        []domain.DepthRecord
	Flood        []domain.FloodRecord
	SkippedLines int
}

// Empty reports whether neither table produced a record.
func (r Result) Empty() bool {
	return len(r.Depth) == 0 && len(r.Flood) == 0
}

// Parser reads depth and flooding tables in a single pass.
type Parser struct {
	column domain.DepthColumn
	depth  Section
	flood  Section
}

// Option customizes a Parser.
type Option func(*Parser)

// WithSections overrides the section markers, e.g. for US-unit reports.
func WithSections(depth, flood Section) Option {
	return func(p *Parser) {
		p.depth = depth
		p.flood = flood
	}
}

// NewParser creates a Parser reading depth from the given column.
func NewParser(column domain.DepthColumn, opts ...Option) *Parser {
	p := &Parser{
		column: column,
		depth:  DepthSection,
		flood:  FloodSection,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile opens and parses the report at path. A missing file is reported
// as domain.ErrMissingInput.
func (p *Parser) ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("report %s: %w", path, domain.ErrMissingInput)
		}
		return Result{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse scans r once, feeding every line to both section trackers.
// Malformed rows are counted and skipped; only read errors are returned.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	var res Result
	depth := newTracker(p.depth)
	flood := newTracker(p.flood)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if fields, ok := depth.feed(line); ok {
			if rec, keep := p.decodeDepth(fields); keep {
				res.Depth = append(res.Depth, rec)
			} else {
				res.SkippedLines++
			}
		}

		if fields, ok := flood.feed(line); ok {
			rec, keep, valid := decodeFlood(fields, p.flood.MinFields)
			switch {
			case keep:
				res.Flood = append(res.Flood, rec)
			case !valid:
				res.SkippedLines++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read report: %w", err)
	}
	return res, nil
}

// decodeDepth turns a depth row into a record, or reports that the row must
// be skipped.
func (p *Parser) decodeDepth(fields []string) (domain.DepthRecord, bool) {
	if len(fields) < max(p.depth.MinFields, 3) {
		return domain.DepthRecord{}, false
	}
	raw := fields[len(fields)-1]
	if p.column == domain.DepthColumnAverage {
		raw = fields[2]
	}
	v, ok := parseValue(raw)
	if !ok {
		return domain.DepthRecord{}, false
	}
	return domain.DepthRecord{NodeID: fields[0], NodeKind: fields[1], Depth: v}, true
}

// decodeFlood turns a flooding row into a record. valid is false when the
// row is malformed; keep is false for malformed rows and for rows with no
// flood volume.
func decodeFlood(fields []string, minFields int) (rec domain.FloodRecord, keep, valid bool) {
	if len(fields) < max(minFields, floodVolumeField+1) {
		return domain.FloodRecord{}, false, false
	}
	v, ok := parseValue(fields[floodVolumeField])
	if !ok {
		return domain.FloodRecord{}, false, false
	}
	if v <= 0 {
		return domain.FloodRecord{}, false, true
	}
	return domain.FloodRecord{NodeID: fields[0], Volume: v}, true, true
}

// parseValue parses a finite table value.
func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
