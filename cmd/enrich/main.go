// Command enrich runs a single enrichment outside the job loop: it reads a
// SWMM report, joins its depth and flooding results onto a GeoJSON dataset and
// prints the run summary as JSON.
//
// Usage:
//
//	go run ./cmd/enrich \
//	  -report data/gfroad.rpt \
//	  -geojson data/point_new.geojson \
//	  -classify
//
// The dataset is updated in place unless -out is given. The exit status is 1
// when the run fails and 2 on bad arguments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/flood-report-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-report-etl/internal/classify"
	"github.com/couchcryptid/flood-report-etl/internal/config"
	"github.com/couchcryptid/flood-report-etl/internal/domain"
	"github.com/couchcryptid/flood-report-etl/internal/observability"
	"github.com/couchcryptid/flood-report-etl/internal/pipeline"
)

func main() {
	reportPath := flag.String("report", "", "path to the SWMM .rpt report")
	sourcePath := flag.String("geojson", "", "path to the GeoJSON point dataset")
	outputPath := flag.String("out", "", "write the enriched dataset here instead of in place")
	doClassify := flag.Bool("classify", false, "bucket flood volumes into severity classes")
	depthColumn := flag.String("depth-column", string(domain.DepthColumnMax), `depth column to read: "max" or "average"`)
	classes := flag.Int("classes", classify.DefaultClasses, "number of severity classes")
	joinKey := flag.String("join-key", domain.DefaultJoinKey, "feature property matched against node IDs")
	historyPath := flag.String("history", "", "SQLite file to record the run in")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *reportPath == "" || *sourcePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	column, err := domain.ParseDepthColumn(*depthColumn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -depth-column: %v\n", err)
		os.Exit(2)
	}
	if *classes < 2 {
		fmt.Fprintln(os.Stderr, "invalid -classes: must be at least 2")
		os.Exit(2)
	}

	job := domain.Job{
		ReportPath: *reportPath,
		SourcePath: *sourcePath,
		OutputPath: *outputPath,
		Classify:   *doClassify,
	}
	opts := pipeline.Options{
		DepthColumn: column,
		Classes:     *classes,
		JoinKey:     *joinKey,
	}

	os.Exit(run(job, opts, *historyPath, *logLevel))
}

func run(job domain.Job, opts pipeline.Options, historyPath, logLevel string) int {
	logger := observability.NewLogger(&config.Config{LogLevel: logLevel, LogFormat: "text"})

	var history pipeline.HistoryRecorder
	if historyPath != "" {
		store, err := sqlite.Open(historyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open run history: %v\n", err)
			return 1
		}
		defer store.Close()
		history = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(opts, history, logger, observability.NewMetrics())
	sum, _, runErr := runner.Run(ctx, job)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
		return 1
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "enrichment failed: %v\n", runErr)
		return 1
	}
	for _, w := range sum.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return 0
}
