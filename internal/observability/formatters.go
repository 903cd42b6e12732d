// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/dmaher/flowline/internal/engine"
	"github.com/dmaher/flowline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// Progress returns a callback that streams engine events as single lines.
// Safe for concurrent stages: each event is one Fprintf call.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Progress() engine.ProgressCallback {
	return func(ev engine.ProgressEvent) {
		if ev.Stage != "" {
			fmt.Fprintf(p.out, "[%s] %s: %s\n", ev.Category, ev.Stage, ev.Message)
			return
		}
		fmt.Fprintf(p.out, "[%s] %s\n", ev.Category, ev.Message)
	}
}

// PrintRunSummary outputs a human-readable summary of a finished run.
func (p *Printer) PrintRunSummary(run *types.Run) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", run.Status))
	if run.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", run.Reason))
	}
	sb.WriteString(fmt.Sprintf("Release:  %s\n", run.Release))
	sb.WriteString(fmt.Sprintf("Cost:     %.4f\n", run.Cost))
	sb.WriteString(fmt.Sprintf("Elapsed:  %s\n", run.Elapsed))
	if run.Retries > 0 {
		sb.WriteString(fmt.Sprintf("Retries:  %d\n", run.Retries))
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStageResults outputs per-stage outcomes in the given order.
func (p *Printer) PrintStageResults(run *types.Run, order []string) {
	if run == nil || len(run.Results) == 0 {
		return
	}

	var sb strings.Builder
	shown := 0
	for _, stage := range order {
		res := run.Result(stage)
		if res == nil {
			continue
		}
		marker := "•"
		switch res.Status {
		case types.StageSucceeded:
			marker = "✓"
		case types.StageFailed:
			marker = "✗"
		case types.StageSkipped:
			marker = "-"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s", marker, stage, res.Status))
		if res.Resumed {
			sb.WriteString(", resumed")
		}
		if res.Retries > 0 {
			sb.WriteString(fmt.Sprintf(", %d retries", res.Retries))
		}
		sb.WriteString(")\n")
		if res.Decision != "" {
			sb.WriteString(fmt.Sprintf("  gate: %s\n", res.Decision))
		}
		if res.Error != "" {
			errText := res.Error
			if len(errText) > 45 {
				errText = errText[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("  %s\n", errText))
		}
		shown++
	}
	if shown == 0 {
		return
	}

	p.printBox("STAGE RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQualityScore outputs the quality signals behind a gate decision.
func (p *Printer) PrintQualityScore(stage string, score *types.QualityScore) {
	if score == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stage:      %s\n", stage))
	sb.WriteString(fmt.Sprintf("Composite:  %.4f\n", score.Composite))
	sb.WriteString(fmt.Sprintf("Checklist:  %.4f\n", score.ChecklistRatio))
	sb.WriteString(fmt.Sprintf("Evaluator:  %.4f\n", score.EvaluatorScore))
	if !score.SchemaValid {
		sb.WriteString("Schema:     INVALID\n")
		count := min(len(score.SchemaErrors), maxItemsToShow)
		for i := 0; i < count; i++ {
			msg := score.SchemaErrors[i]
			if len(msg) > 50 {
				msg = msg[:47] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • %s\n", msg))
		}
		if len(score.SchemaErrors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(score.SchemaErrors)-maxItemsToShow))
		}
	}

	p.printBox("QUALITY SCORE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintUpsertReport outputs what the writer did with the final batch.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintUpsertReport(report *types.UpsertReport) {
	if report == nil {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO RECORDS PERSISTED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Created:  %d\n", report.Created))
	sb.WriteString(fmt.Sprintf("Updated:  %d\n", report.Updated))

	shown := 0
	for key, outcome := range report.Outcomes {
		if shown >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(report.Outcomes)-maxItemsToShow))
			break
		}
		display := key
		if len(display) > 40 {
			display = display[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("  • %s (%s)\n", display, outcome))
		shown++
	}

	p.printBox("PERSISTED RECORDS", strings.TrimSuffix(sb.String(), "\n"))
}
