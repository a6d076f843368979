package harness

// Harness controller: drives a population of conversations against the
// target and classifies each outcome. The sanity conversation brackets
// the run so a flaky target is caught even when every fuzzed exchange
// behaves.

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/logging"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/report"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/runner"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/scenario"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
)

// Options configures a Controller.
type Options struct {
	// RunOnly restricts the run to the named conversations. The
	// bracketing sanity conversation always runs.
	RunOnly []string
	// Exclude removes the named conversations from the run.
	Exclude []string
	// ExpectedFailures maps conversation names to an optional required
	// substring of the failure message.
	ExpectedFailures map[string]string
	// SampleLimit caps how many regular conversations execute, sampled
	// without replacement. 0 runs everything.
	SampleLimit int
	// Rand drives sampling. Nil seeds from the clock.
	Rand *rand.Rand
	// NewClient produces a fresh client per conversation.
	NewClient func() client.Client
	// Timeout bounds each blocking read. 0 uses the runner default.
	Timeout time.Duration

	// OnResult, when set, observes each classified result as it lands.
	OnResult func(report.Result)

	Logger *logging.Logger
	Out    io.Writer
}

// Controller executes one run.
type Controller struct {
	opts Options
}

// New creates a Controller. NewClient is required.
func New(opts Options) (*Controller, error) {
	if opts.NewClient == nil {
		return nil, fmt.Errorf("harness: NewClient is required")
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Controller{opts: opts}, nil
}

// Run executes the population and returns the accumulated summary. The
// error return covers harness malfunctions only; target misbehavior is
// reported through the summary.
func (c *Controller) Run(ctx context.Context, pop *scenario.Population) (*report.Summary, error) {
	summary := report.NewSummary()
	summary.Skipped = len(pop.Skipped())
	fmt.Fprintf(c.opts.Out, "Run %s\n\n", summary.RunID)

	regular, excluded := c.selectRegular(pop.Regular())
	summary.Skipped += excluded

	// Sanity brackets the regular conversations.
	for _, e := range pop.Sanity() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c.runOne(ctx, summary, e)
	}
	for _, e := range regular {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c.runOne(ctx, summary, e)
	}
	for _, e := range pop.Sanity() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		c.runOne(ctx, summary, e)
	}

	summary.RenderText(c.opts.Out)
	return summary, nil
}

// selectRegular applies RunOnly, Exclude, and sampling. The returned
// count covers only explicit exclusions naming a conversation in the
// population; conversations left out by sampling or by RunOnly are not
// skipped, just not chosen.
func (c *Controller) selectRegular(all []scenario.Entry) ([]scenario.Entry, int) {
	runOnly := toSet(c.opts.RunOnly)
	exclude := toSet(c.opts.Exclude)

	var eligible []scenario.Entry
	excluded := 0
	for _, e := range all {
		if exclude[e.Name] {
			excluded++
			continue
		}
		if len(runOnly) > 0 && !runOnly[e.Name] {
			continue
		}
		eligible = append(eligible, e)
	}

	if c.opts.SampleLimit <= 0 || c.opts.SampleLimit >= len(eligible) {
		return eligible, excluded
	}

	// Sample without replacement; the permutation order becomes the
	// execution order.
	perm := c.opts.Rand.Perm(len(eligible))
	sampled := make([]scenario.Entry, 0, c.opts.SampleLimit)
	for _, idx := range perm[:c.opts.SampleLimit] {
		sampled = append(sampled, eligible[idx])
	}
	return sampled, excluded
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// runOne executes a single conversation and records its classification.
func (c *Controller) runOne(ctx context.Context, summary *report.Summary, e scenario.Entry) {
	fmt.Fprintf(c.opts.Out, "%s ...\n", e.Name)

	opts := []runner.Option{}
	if c.opts.Logger != nil {
		opts = append(opts, runner.WithLogger(c.opts.Logger))
	}
	if c.opts.Timeout > 0 {
		opts = append(opts, runner.WithReceiveTimeout(c.opts.Timeout))
	}

	start := time.Now()
	r := runner.New(c.opts.NewClient(), opts...)
	err := r.Run(ctx, e.Conv)
	elapsed := time.Since(start)

	result := c.classify(e.Name, err, elapsed)
	summary.Add(result)
	if c.opts.OnResult != nil {
		c.opts.OnResult(result)
	}

	if c.opts.Logger != nil {
		c.opts.Logger.LogConversation(e.Name, result.Outcome.String(), float64(elapsed.Microseconds())/1000, err)
	}

	switch result.Outcome {
	case report.Pass:
		fmt.Fprintln(c.opts.Out, "OK")
	case report.XFail:
		fmt.Fprintln(c.opts.Out, "OK-expected failure")
	case report.XPass:
		fmt.Fprintln(c.opts.Out, "XPASS-expected failure but test passed")
	case report.Fail:
		fmt.Fprintf(c.opts.Out, "Error: %v\n", err)
		fmt.Fprintln(c.opts.Out, "FAIL")
	}
	fmt.Fprintln(c.opts.Out)
}

// classify turns a runner result into an outcome, consulting the
// expected-failure table.
func (c *Controller) classify(name string, err error, elapsed time.Duration) report.Result {
	want, expected := c.opts.ExpectedFailures[name]

	res := report.Result{Name: name, Err: err, Elapsed: elapsed}
	switch {
	case err == nil && !expected:
		res.Outcome = report.Pass
	case err == nil && expected:
		res.Outcome = report.XPass
	case err != nil && !expected:
		res.Outcome = report.Fail
	case want != "" && !strings.Contains(err.Error(), want):
		// Failed, but not the failure the operator acknowledged.
		res.Outcome = report.Fail
		res.Err = fmt.Errorf("expected failure matching %q, got: %w", want, err)
	default:
		res.Outcome = report.XFail
	}
	return res
}
