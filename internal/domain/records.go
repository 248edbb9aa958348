package domain

import (
	"context"
	"fmt"
	"time"
)

// Property names the enricher owns on GeoJSON features.
const (
	PropAvgDepth    = "AVG_DEPTH"
	PropMaxDepth    = "MAX_DEPTH"
	PropFloodVolume = "FLOOD_VOLUME"
	PropOutDepth    = "OUT_DEPTH"
	PropClass       = "class"

	// PropWellDepth is owned by the upstream dataset and only read.
	PropWellDepth = "WELLDEEP"

	// DefaultJoinKey is the feature property matched against node IDs.
	DefaultJoinKey = "EXP_NO"
)

// DepthColumn selects which depth column of the Node Depth Summary is read.
type DepthColumn string

const (
	// DepthColumnMax reads the last column ("Reported Max Depth") into MAX_DEPTH.
	DepthColumnMax DepthColumn = "max"
	// DepthColumnAverage reads column 2 ("Average Depth") into AVG_DEPTH.
	DepthColumnAverage DepthColumn = "average"
)

// ParseDepthColumn validates a policy name.
func ParseDepthColumn(s string) (DepthColumn, error) {
	switch DepthColumn(s) {
	case DepthColumnMax, DepthColumnAverage:
		return DepthColumn(s), nil
	default:
		return "", fmt.Errorf("unknown depth column %q (want %q or %q)", s, DepthColumnMax, DepthColumnAverage)
	}
}

// Property returns the feature property the policy writes.
func (c DepthColumn) Property() string {
	if c == DepthColumnAverage {
		return PropAvgDepth
	}
	return PropMaxDepth
}

// DepthRecord is one row of the Node Depth Summary.
type DepthRecord struct {
	NodeID   string  `json:"node_id"`
	NodeKind string  `json:"node_kind"`
	Depth    float64 `json:"depth"`
}

// FloodRecord is one row of the Node Flooding Summary with a positive volume.
type FloodRecord struct {
	NodeID string  `json:"node_id"`
	Volume float64 `json:"volume"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Job asks for one dataset to be enriched from one report.
type Job struct {
	ID         string `json:"job_id"`
	ReportPath string `json:"report_path"`
	SourcePath string `json:"source_path"`
	OutputPath string `json:"output_path,omitempty"`
	Classify   bool   `json:"classify"`
}

// Run outcomes reported in Summary.Status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Summary is the observable outcome of one enrichment run.
type Summary struct {
	RunID      string `json:"run_id"`
	JobID      string `json:"job_id,omitempty"`
	ReportPath string `json:"report_path"`
	SourcePath string `json:"source_path"`
	OutputPath string `json:"output_path"`

	DepthColumn  DepthColumn `json:"depth_column"`
	DepthRecords int         `json:"depth_records"`
	FloodRecords int         `json:"flood_records"`
	SkippedLines int         `json:"skipped_lines"`

	Features         int `json:"features"`
	DepthMatched     int `json:"depth_matched"`
	FloodMatched     int `json:"flood_matched"`
	ClassMatched     int `json:"class_matched"`
	OutDepthComputed int `json:"out_depth_computed"`
	OutDepthFailed   int `json:"out_depth_failed"`

	Classified            bool      `json:"classified"`
	ClassificationSkipped bool      `json:"classification_skipped,omitempty"`
	Breaks                []float64 `json:"breaks,omitempty"`
	Ranges                []string  `json:"ranges,omitempty"`
	GVF                   float64   `json:"gvf,omitempty"`

	// Warnings lists recoverable conditions, e.g. a skipped classification.
	Warnings []string `json:"warnings,omitempty"`

	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration reports how long the run took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
