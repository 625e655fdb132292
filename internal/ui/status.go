package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
)

// defaultBarWidth is the width of progress bars in cells.
const defaultBarWidth = 30

// SiteStatus is the queue state of one site.
type SiteStatus struct {
	Domain   string  `json:"domain"`
	Root     int     `json:"root"`
	Total    int     `json:"total"`
	Pending  int     `json:"pending"`
	Indexed  int     `json:"indexed"`
	Failed   int     `json:"failed"`
	Progress float64 `json:"progress"`
}

// EventStatus is the state of the event queue.
type EventStatus struct {
	Queued  int `json:"queued"`
	Errored int `json:"errored"`
}

// StatusReport is the input of StatusRenderer.
type StatusReport struct {
	Monitoring  string       `json:"monitoring"`
	Sites       []SiteStatus `json:"sites"`
	Events      EventStatus  `json:"events"`
	Documents   uint64       `json:"documents"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// ErrorRow is one failed queue item.
type ErrorRow struct {
	Root          int    `json:"root"`
	Type          string `json:"type"`
	UID           int    `json:"uid"`
	Configuration string `json:"configuration"`
	Count         int    `json:"error_count"`
	Message       string `json:"message"`
}

// RunSummary is the outcome of a worker run on one site.
type RunSummary struct {
	Domain    string        `json:"domain"`
	Root      int           `json:"root"`
	Fetched   int           `json:"fetched"`
	Indexed   int           `json:"indexed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Swept     bool          `json:"swept"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// StatusRenderer writes reports to a terminal or pipe.
type StatusRenderer struct {
	out      io.Writer
	styles   Styles
	noColor  bool
	barWidth int
}

// NewStatusRenderer creates a renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:      out,
		styles:   GetStyles(noColor),
		noColor:  noColor,
		barWidth: defaultBarWidth,
	}
}

// Render writes a human readable status report.
func (r *StatusRenderer) Render(report StatusReport) error {
	_, err := io.WriteString(r.out, r.format(report))
	return err
}

func (r *StatusRenderer) format(report StatusReport) string {
	var b strings.Builder
	header := "searchsync status"
	if report.Monitoring != "" {
		header += " (monitoring: " + report.Monitoring + ")"
	}
	fmt.Fprintf(&b, "%s\n\n", r.styles.Header.Render(header))

	if len(report.Sites) == 0 {
		fmt.Fprintf(&b, "  %s\n", r.styles.Dim.Render("no sites configured"))
	}
	for _, s := range report.Sites {
		fmt.Fprintf(&b, "  %s %s\n", r.styles.Site.Render(s.Domain), r.styles.Label.Render(fmt.Sprintf("root %d", s.Root)))
		fmt.Fprintf(&b, "    %s %5.1f%%\n", r.Bar(s.Progress), s.Progress)
		fmt.Fprintf(&b, "    %s %d  %s %d  %s %s\n",
			r.styles.Label.Render("total"), s.Total,
			r.styles.Label.Render("pending"), s.Pending,
			r.styles.Label.Render("failed"), r.count(s.Failed))
	}

	fmt.Fprintf(&b, "\n  %s %d queued, %s errored\n",
		r.styles.Label.Render("event queue:"), report.Events.Queued, r.count(report.Events.Errored))
	fmt.Fprintf(&b, "  %s %d\n", r.styles.Label.Render("documents:"), report.Documents)
	return b.String()
}

// RenderJSON writes v as indented JSON.
func (r *StatusRenderer) RenderJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderErrors lists failed queue items.
func (r *StatusRenderer) RenderErrors(rows []ErrorRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.out, r.styles.Success.Render("no failed items"))
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.styles.Header.Render(fmt.Sprintf("%d failed items", len(rows))))
	for _, row := range rows {
		fmt.Fprintf(&b, "  %s %s:%d %s\n",
			r.styles.Label.Render(fmt.Sprintf("[root %d]", row.Root)),
			row.Type, row.UID,
			r.styles.Dim.Render(fmt.Sprintf("(%s, %d attempts)", row.Configuration, row.Count)))
		fmt.Fprintf(&b, "    %s\n", r.styles.Error.Render(row.Message))
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

// RenderRuns summarizes worker runs.
func (r *StatusRenderer) RenderRuns(runs []RunSummary) error {
	var b strings.Builder
	for _, run := range runs {
		name := r.styles.Site.Render(run.Domain)
		if run.Error != "" {
			fmt.Fprintf(&b, "%s %s\n", name, r.styles.Error.Render(run.Error))
			continue
		}
		line := fmt.Sprintf("%d indexed, %d failed, %d skipped of %d in %s",
			run.Indexed, run.Failed, run.Skipped, run.Fetched, FormatDuration(run.Duration))
		style := r.styles.Success
		if run.Failed > 0 {
			style = r.styles.Warning
		}
		fmt.Fprintf(&b, "%s %s", name, style.Render(line))
		if run.Swept {
			fmt.Fprintf(&b, " %s", r.styles.Dim.Render("(swept)"))
		}
		if run.Cancelled {
			fmt.Fprintf(&b, " %s", r.styles.Warning.Render("(cancelled)"))
		}
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

// Bar renders a progress bar for percent in [0,100].
func (r *StatusRenderer) Bar(percent float64) string {
	frac := percent / 100
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	if r.noColor {
		filled := int(frac*float64(r.barWidth) + 0.5)
		return "[" + strings.Repeat("#", filled) + strings.Repeat("-", r.barWidth-filled) + "]"
	}
	bar := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(r.barWidth),
		progress.WithoutPercentage(),
	)
	return bar.ViewAs(frac)
}

func (r *StatusRenderer) count(n int) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return r.styles.Error.Render(s)
	}
	return s
}

// FormatDuration formats d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
