package report

// Run bookkeeping: per-conversation results, counters, and the final
// summary block printed at the end of a run.

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies one executed conversation.
type Outcome int

const (
	// Pass means the conversation matched the scripted exchange.
	Pass Outcome = iota
	// Fail means it did not, and no expected-failure entry covered it.
	Fail
	// XFail means it failed and an expected-failure entry covered it.
	XFail
	// XPass means it passed despite an expected-failure entry. A fixed
	// server behavior the operator has not acknowledged yet.
	XPass
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case XFail:
		return "XFAIL"
	case XPass:
		return "XPASS"
	default:
		return fmt.Sprintf("{Outcome %d}", int(o))
	}
}

// Result records one conversation's classification.
type Result struct {
	Name    string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// Summary accumulates results across a run.
type Summary struct {
	RunID   string
	Started time.Time

	// Skipped counts conversations excluded before execution.
	Skipped int

	results []Result
}

// NewSummary starts an empty summary with a fresh run ID.
func NewSummary() *Summary {
	return &Summary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
}

// Add records one result.
func (s *Summary) Add(r Result) {
	s.results = append(s.results, r)
}

// Results returns all recorded results in execution order.
func (s *Summary) Results() []Result { return s.results }

// Count returns the number of results with the given outcome.
func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Total returns executed plus skipped conversations.
func (s *Summary) Total() int { return len(s.results) + s.Skipped }

// Names returns the naturally sorted names of results with the given
// outcome.
func (s *Summary) Names(o Outcome) []string {
	var names []string
	for _, r := range s.results {
		if r.Outcome == o {
			names = append(names, r.Name)
		}
	}
	NaturalSort(names)
	return names
}

// Clean reports whether the run had no failures and no unexpected
// passes.
func (s *Summary) Clean() bool {
	return s.Count(Fail) == 0 && s.Count(XPass) == 0
}

var naturalChunk = regexp.MustCompile(`\d+|\D+`)

// NaturalSort sorts names so embedded numbers order numerically:
// "fuzz byte 2" sorts before "fuzz byte 10".
func NaturalSort(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})
}

func naturalLess(a, b string) bool {
	as := naturalChunk.FindAllString(a, -1)
	bs := naturalChunk.FindAllString(b, -1)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return an < bn
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}

// RenderText writes the end-of-run report: failed and unexpectedly
// passed conversation listings followed by the counter block.
func (s *Summary) RenderText(w io.Writer) {
	if failed := s.Names(Fail); len(failed) > 0 {
		fmt.Fprintln(w, "FAILED:")
		for _, name := range failed {
			fmt.Fprintf(w, "  %q\n", name)
		}
	}
	if xpassed := s.Names(XPass); len(xpassed) > 0 {
		fmt.Fprintln(w, "XPASSED:")
		for _, name := range xpassed {
			fmt.Fprintf(w, "  %q\n", name)
		}
	}

	fmt.Fprintln(w, "Test end")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "TOTAL: %d\n", s.Total())
	fmt.Fprintf(w, "SKIP: %d\n", s.Skipped)
	fmt.Fprintf(w, "PASS: %d\n", s.Count(Pass))
	fmt.Fprintf(w, "XFAIL: %d\n", s.Count(XFail))
	fmt.Fprintf(w, "FAIL: %d\n", s.Count(Fail))
	fmt.Fprintf(w, "XPASS: %d\n", s.Count(XPass))
	fmt.Fprintln(w, "====================")
}
