// Command validate cross-checks an enriched GeoJSON dataset against the SWMM
// report it was enriched from. It re-parses the report and verifies joined
// depths, flood volumes, derived OUT_DEPTH values and severity classes.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -report data/gfroad.rpt \
//	  -geojson data/point_new.geojson
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/flood-report-etl/internal/classify"
	"github.com/couchcryptid/flood-report-etl/internal/domain"
	"github.com/couchcryptid/flood-report-etl/internal/geojson"
	"github.com/couchcryptid/flood-report-etl/internal/report"
)

const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	reportPath := flag.String("report", "", "path to the SWMM .rpt report")
	geojsonPath := flag.String("geojson", "", "path to the enriched GeoJSON dataset")
	depthColumn := flag.String("depth-column", string(domain.DepthColumnMax), `depth column the dataset was enriched with`)
	joinKey := flag.String("join-key", domain.DefaultJoinKey, "feature property matched against node IDs")
	classes := flag.Int("classes", classify.DefaultClasses, "number of severity classes")
	flag.Parse()

	if *reportPath == "" || *geojsonPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	column, err := domain.ParseDepthColumn(*depthColumn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if code := run(*reportPath, *geojsonPath, column, *joinKey, *classes); code != 0 {
		os.Exit(code)
	}
}

func run(reportPath, geojsonPath string, column domain.DepthColumn, joinKey string, classes int) int {
	fmt.Println("=== Flood Enrichment Validation ===")
	fmt.Println()

	parsed, err := report.NewParser(column).ParseFile(reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse report: %v\n", err)
		return 1
	}
	fc, err := geojson.Load(geojsonPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load dataset: %v\n", err)
		return 1
	}

	depth := domain.DepthValues(parsed.Depth)
	flood := domain.FloodValues(parsed.Flood)

	phases := []*phase{
		validateReport(parsed),
		validateJoin("Depth join ("+column.Property()+")", fc, joinKey, column.Property(), depth),
		validateJoin("Flood join ("+domain.PropFloodVolume+")", fc, joinKey, domain.PropFloodVolume, flood),
		validateOutDepth(fc),
		validateClasses(fc, joinKey, flood, classes),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d depth, %d flood, %d skipped lines; %d features\n",
		len(parsed.Depth), len(parsed.Flood), parsed.SkippedLines, len(fc.Features))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateReport(parsed report.Result) *phase {
	p := &phase{name: "Report sections"}
	if parsed.Empty() {
		p.errorf("report has no depth or flooding records")
	}
	seen := make(map[string]bool, len(parsed.Depth))
	for _, r := range parsed.Depth {
		if seen[r.NodeID] {
			p.errorf("node %s appears twice in the depth summary", r.NodeID)
		}
		seen[r.NodeID] = true
		if r.Depth < 0 {
			p.errorf("node %s: negative depth %g", r.NodeID, r.Depth)
		}
	}
	for _, r := range parsed.Flood {
		if r.Volume <= 0 {
			p.errorf("node %s: non-positive flood volume %g kept", r.NodeID, r.Volume)
		}
	}
	return p
}

// validateJoin checks that every feature matching a record carries its value
// and that no feature carries the property without a matching record.
func validateJoin(name string, fc *geojson.FeatureCollection, joinKey, property string, values *domain.NodeValues) *phase {
	p := &phase{name: name}
	matched := 0
	for i, f := range fc.Features {
		id, hasKey := f.Key(joinKey)
		want, hasRecord := values.Get(id)
		raw, hasProp := f.Properties[property]

		switch {
		case hasKey && hasRecord:
			matched++
			got, ok := geojson.Number(raw)
			if !hasProp || !ok {
				p.errorf("feature %d (%s): %s missing, want %g", i, id, property, want)
			} else if math.Abs(got-want) > tolerance {
				p.errorf("feature %d (%s): %s = %g, want %g", i, id, property, got, want)
			}
		case hasProp:
			p.errorf("feature %d (%s): %s set without a matching report record", i, id, property)
		}
	}
	if values.Len() > 0 && matched == 0 {
		p.errorf("no feature matched any of %d records on %s", values.Len(), joinKey)
	}
	return p
}

func validateOutDepth(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Derived " + domain.PropOutDepth}
	for i, f := range fc.Features {
		maxRaw, hasMax := f.Properties[domain.PropMaxDepth]
		if !hasMax {
			continue
		}
		out, hasOut := f.Properties[domain.PropOutDepth]
		if !hasOut {
			p.errorf("feature %d: %s missing next to %s", i, domain.PropOutDepth, domain.PropMaxDepth)
			continue
		}

		depth, okMax := geojson.Number(maxRaw)
		well, okWell := geojson.Number(f.Properties[domain.PropWellDepth])
		got, okOut := geojson.Number(out)
		switch {
		case !okMax || !okWell:
			if out != nil {
				p.errorf("feature %d: %s = %v, want null for unusable inputs", i, domain.PropOutDepth, out)
			}
		case !okOut:
			p.errorf("feature %d: %s is not numeric", i, domain.PropOutDepth)
		case math.Abs(got-(depth-well)) > tolerance:
			p.errorf("feature %d: %s = %g, want %g", i, domain.PropOutDepth, got, depth-well)
		}
	}
	return p
}

// validateClasses recomputes the classification when the dataset carries
// classes. A dataset without any class passes.
func validateClasses(fc *geojson.FeatureCollection, joinKey string, flood *domain.NodeValues, classes int) *phase {
	p := &phase{name: "Severity classes"}

	classified := false
	for _, f := range fc.Features {
		if _, ok := f.Properties[domain.PropClass]; ok {
			classified = true
			break
		}
	}
	if !classified {
		return p
	}

	res, err := classify.Classify(flood, classes)
	if err != nil {
		p.errorf("classify: %v", err)
		return p
	}
	if res.Skipped {
		p.errorf("dataset has classes but only %d flooded nodes", flood.Len())
		return p
	}

	for i, f := range fc.Features {
		raw, hasClass := f.Properties[domain.PropClass]
		if !hasClass {
			continue
		}
		if _, flooded := f.Properties[domain.PropFloodVolume]; !flooded {
			p.errorf("feature %d: %s set on a feature without %s", i, domain.PropClass, domain.PropFloodVolume)
			continue
		}
		id, _ := f.Key(joinKey)
		want, ok := res.Classes[id]
		got, okNum := geojson.Number(raw)
		if !ok || !okNum || int(got) != want {
			p.errorf("feature %d (%s): %s = %v, want %d", i, id, domain.PropClass, raw, want)
		}
	}
	return p
}
