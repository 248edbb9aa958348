package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParseJob deserializes a RawEvent's value into a Job.
// Paths are trimmed; a job without an ID gets a deterministic one derived from
// its paths so redelivered messages produce the same ID.
func ParseJob(raw RawEvent) (Job, error) {
	var job Job
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return Job{}, fmt.Errorf("parse job: %w", err)
	}

	job.ReportPath = strings.TrimSpace(job.ReportPath)
	job.SourcePath = strings.TrimSpace(job.SourcePath)
	job.OutputPath = strings.TrimSpace(job.OutputPath)
	job.ID = strings.TrimSpace(job.ID)

	if job.ReportPath == "" {
		return Job{}, errors.New("parse job: report_path is required")
	}
	if job.SourcePath == "" {
		return Job{}, errors.New("parse job: source_path is required")
	}
	if job.ID == "" {
		job.ID = generateJobID(job.ReportPath, job.SourcePath, job.OutputPath)
	}
	return job, nil
}

// generateJobID produces a deterministic ID from the job's paths.
func generateJobID(reportPath, sourcePath, outputPath string) string {
	input := fmt.Sprintf("%s|%s|%s", reportPath, sourcePath, outputPath)
	hash := sha256.Sum256([]byte(input))
	return "job-" + hex.EncodeToString(hash[:8])
}

// NewRunID returns a fresh identifier for one execution of a job.
func NewRunID() string {
	return uuid.NewString()
}

// SerializeSummary converts a Summary into an OutputEvent keyed by job ID
// (falling back to the run ID for ad-hoc runs).
func SerializeSummary(s Summary) (OutputEvent, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize summary: %w", err)
	}
	key := s.JobID
	if key == "" {
		key = s.RunID
	}
	return OutputEvent{
		Key:   []byte(key),
		Value: data,
		Headers: map[string]string{
			"status":       s.Status,
			"processed_at": s.FinishedAt.Format(time.RFC3339),
		},
	}, nil
}
