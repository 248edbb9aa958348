package report

import "strings"

type sectionState int

const (
	seekingSection sectionState = iota
	seekingHeader
	readingRows
)

// tracker follows one section through the line stream.
type tracker struct {
	sec    Section
	header string
	state  sectionState
}

func newTracker(sec Section) *tracker {
	return &tracker{sec: sec, header: normalize(sec.Header)}
}

// feed advances the state machine with a trimmed line. It returns the
// line's tokens and true only when the line is a candidate data row.
func (t *tracker) feed(line string) ([]string, bool) {
	// A title restarts the section from any state.
	if strings.Contains(line, t.sec.Title) {
		t.state = seekingHeader
		return nil, false
	}

	switch t.state {
	case seekingHeader:
		if strings.Contains(normalize(line), t.header) {
			t.state = readingRows
		}
		return nil, false
	case readingRows:
		if t.sec.End != "" && strings.Contains(line, t.sec.End) {
			t.state = seekingSection
			return nil, false
		}
		if line == "" || strings.HasPrefix(line, "--") {
			return nil, false
		}
		return strings.Fields(line), true
	default:
		return nil, false
	}
}

// normalize collapses runs of whitespace so fixed-width padding does not
// affect header matching.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
