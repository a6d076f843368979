package tui

// Interactive run view: streams per-conversation results while the
// harness executes, then holds the summary on screen. The failed
// conversation names can be copied straight into an expected-failures
// flag for the next run.

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/errors"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/report"
)

// StartFunc runs the harness, reporting each result through onResult.
type StartFunc func(onResult func(report.Result)) (*report.Summary, error)

type resultMsg report.Result

type doneMsg struct {
	summary *report.Summary
	err     error
}

type copiedMsg struct {
	err error
}

// Model is the bubbletea model for a run.
type Model struct {
	styles Styles
	start  StartFunc
	ch     chan tea.Msg
	quit   chan struct{}

	total     int
	results   []report.Result
	failed    []string
	firstFail *report.Result

	done    bool
	err     error
	summary *report.Summary
	copied  string
}

// NewModel creates a run view over the given harness start function.
// total is the number of conversations that will execute.
func NewModel(total int, start StartFunc) Model {
	return Model{
		styles: DefaultStyles,
		start:  start,
		ch:     make(chan tea.Msg, 16),
		quit:   make(chan struct{}),
		total:  total,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.begin, m.wait)
}

// begin drives the harness; bubbletea runs it on its own goroutine.
// Every message, the final doneMsg included, goes through the one
// channel so results are never reordered past completion, and a quit
// mid-run unblocks the harness instead of leaving it stuck on a full
// channel.
func (m Model) begin() tea.Msg {
	summary, err := m.start(func(r report.Result) {
		m.deliver(resultMsg(r))
	})
	m.deliver(doneMsg{summary: summary, err: err})
	return nil
}

func (m Model) deliver(msg tea.Msg) {
	select {
	case m.ch <- msg:
	case <-m.quit:
	}
}

func (m Model) wait() tea.Msg {
	return <-m.ch
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			select {
			case <-m.quit:
			default:
				close(m.quit)
			}
			return m, tea.Quit
		case "c":
			if len(m.failed) > 0 {
				names := strings.Join(m.failed, "\n")
				return m, func() tea.Msg {
					return copiedMsg{err: clipboard.WriteAll(names)}
				}
			}
		}

	case resultMsg:
		r := report.Result(msg)
		m.results = append(m.results, r)
		if r.Outcome == report.Fail || r.Outcome == report.XPass {
			m.failed = append(m.failed, r.Name)
			if m.firstFail == nil {
				m.firstFail = &r
			}
		}
		return m, m.wait

	case doneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.copied = fmt.Sprintf("copy failed: %v", msg.err)
		} else {
			m.copied = fmt.Sprintf("copied %d failed conversation names", len(m.failed))
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("tlsfuzzer"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("run failed: %v", m.err)))
		b.WriteString("\n")
		b.WriteString(m.styles.Footer.Render("q quit"))
		return b.String()
	}

	b.WriteString(m.progressLine())
	b.WriteString("\n\n")

	// Tail of the result stream.
	tail := m.results
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, r := range tail {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			OutcomeIcon(r.Outcome.String(), m.styles),
			m.styles.Dim.Render(fmt.Sprintf("%-5s", r.Outcome)),
			m.styles.Base.Render(r.Name)))
	}

	if len(m.failed) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("%d failed", len(m.failed))))
		b.WriteString("\n")
	}

	if m.done && m.summary != nil {
		b.WriteString("\n")
		b.WriteString(m.summaryPanel())
		b.WriteString("\n")
		if m.firstFail != nil && m.firstFail.Err != nil {
			b.WriteString("\n")
			b.WriteString(m.styles.Dim.Render(
				errors.WrapHandshakeError(m.firstFail.Err, m.firstFail.Name).Error()))
			b.WriteString("\n")
		}
	}

	if m.copied != "" {
		b.WriteString(m.styles.Dim.Render(m.copied))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	hints := []string{m.styles.KeyBinding.Render("q") + m.styles.KeyHint.Render(" quit")}
	if len(m.failed) > 0 {
		hints = append(hints, m.styles.KeyBinding.Render("c")+m.styles.KeyHint.Render(" copy failed names"))
	}
	b.WriteString(strings.Join(hints, "  "))
	return b.String()
}

func (m Model) progressLine() string {
	if m.done {
		return m.styles.Success.Render(fmt.Sprintf("done: %d conversations", len(m.results)))
	}
	return m.styles.Running.Render(fmt.Sprintf("running %d/%d", len(m.results), m.total))
}

func (m Model) summaryPanel() string {
	s := m.summary
	lines := []string{
		fmt.Sprintf("TOTAL: %d", s.Total()),
		fmt.Sprintf("SKIP:  %d", s.Skipped),
		fmt.Sprintf("PASS:  %d", s.Count(report.Pass)),
		fmt.Sprintf("XFAIL: %d", s.Count(report.XFail)),
		fmt.Sprintf("FAIL:  %d", s.Count(report.Fail)),
		fmt.Sprintf("XPASS: %d", s.Count(report.XPass)),
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n"))
}
