// Package observability renders pipeline runs and registry contents for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/pipeline"
	"github.com/jonathan/zeroecho/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxFailuresToShow caps the failure table of a run summary
	maxFailuresToShow = 20
	// titleWidth truncates article titles in list tables
	titleWidth = 48
)

// Printer handles formatted output for the CLI
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

	for _, line := range strings.Split(content, "\n") {
		if text.RuneWidthWithoutEscSequences(line) > boxWidth-4 {
			line = text.Trim(line, boxWidth-7) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// PrintRunResult outputs the run header, the per-phase counts and any failures.
func (p *Printer) PrintRunResult(result *pipeline.RunResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", result.RunID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", result.Status()))
	sb.WriteString(fmt.Sprintf("Dry run:  %t\n", result.DryRun))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration().Round(time.Millisecond)))
	p.printBox("PIPELINE RUN", sb.String())

	phases := p.newTable()
	phases.AppendHeader(table.Row{"Phase", "Attempted", "Succeeded", "Failed", "Skipped", "Duration"})
	var attempted, succeeded, failed, skipped int
	for _, ph := range result.Phases {
		phases.AppendRow(table.Row{
			ph.Phase,
			ph.Attempted,
			ph.Succeeded,
			ph.Failed,
			ph.Skipped,
			ph.Duration.Round(time.Millisecond),
		})
		attempted += ph.Attempted
		succeeded += ph.Succeeded
		failed += ph.Failed
		skipped += ph.Skipped
	}
	phases.AppendFooter(table.Row{"Total", attempted, succeeded, failed, skipped, ""})
	phases.Render()

	if len(result.Failures) == 0 {
		return
	}

	failures := p.newTable()
	failures.AppendHeader(table.Row{"Phase", "Article", "Kind", "Reason"})
	failures.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60},
	})
	for i, f := range result.Failures {
		if i == maxFailuresToShow {
			failures.AppendFooter(table.Row{"", "", "", fmt.Sprintf("... and %d more", len(result.Failures)-maxFailuresToShow)})
			break
		}
		failures.AppendRow(table.Row{f.Phase, shortID(f.ArticleID), f.Kind, f.Reason})
	}
	failures.Render()
}

// PrintArticles outputs one table row per article.
func (p *Printer) PrintArticles(articles []*types.Article) {
	t := p.newTable()
	t.AppendHeader(table.Row{"ID", "State", "Title", "Impact", "ZeroEcho", "Updated"})
	for _, a := range articles {
		if a == nil {
			continue
		}
		impact, zes := "-", "-"
		if a.Scores != nil {
			impact = fmt.Sprintf("%.2f", a.Scores.ImpactScore)
			zes = fmt.Sprintf("%.2f", a.Scores.ZeroEchoScore)
		}
		t.AppendRow(table.Row{
			shortID(a.ID),
			a.State,
			text.Trim(firstNonEmpty(a.Title, a.SourceURL), titleWidth),
			impact,
			zes,
			a.UpdatedAt.Format(time.RFC3339),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d articles", len(articles)), "", "", ""})
	t.Render()
}

// PrintArticle outputs the full record of a single article.
func (p *Printer) PrintArticle(a *types.Article) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID:       %s\n", a.ID))
	sb.WriteString(fmt.Sprintf("State:    %s\n", a.State))
	sb.WriteString(fmt.Sprintf("Title:    %s\n", a.Title))
	sb.WriteString(fmt.Sprintf("Source:   %s\n", a.SourceURL))
	if a.PublishedAt != nil {
		sb.WriteString(fmt.Sprintf("Published: %s\n", a.PublishedAt.Format(time.RFC3339)))
	}
	if a.Scores != nil {
		sb.WriteString(fmt.Sprintf("Impact:   %.2f\n", a.Scores.ImpactScore))
		sb.WriteString(fmt.Sprintf("ZeroEcho: %.2f\n", a.Scores.ZeroEchoScore))
	}
	if a.Classification != "" {
		sb.WriteString(fmt.Sprintf("Label:    %s\n", a.Classification))
	}
	if a.Release != nil {
		sb.WriteString(fmt.Sprintf("Edition:  %s\n", a.Release.Edition))
	}
	sb.WriteString(fmt.Sprintf("Updated:  %s", a.UpdatedAt.Format(time.RFC3339)))
	p.printBox("ARTICLE", sb.String())

	if a.RawAnalysis == nil {
		return
	}
	t := p.newTable()
	t.AppendHeader(table.Row{"Category", "Label", "Value"})
	appendSignals := func(category string, items []types.SignalItem) {
		for _, it := range items {
			t.AppendRow(table.Row{category, it.Label, fmt.Sprintf("%.2f", it.Value)})
		}
	}
	appendSignals("entity", a.RawAnalysis.ImpactEntities)
	appendSignals("event", a.RawAnalysis.ImpactEvents)
	appendSignals("penalty", a.RawAnalysis.Penalties)
	appendSignals("modifier", a.RawAnalysis.Modifiers)
	t.Render()
}

// PrintRuns outputs one row per recorded run with its per-phase statuses.
func (p *Printer) PrintRuns(runs []db.RunRecord) {
	t := p.newTable()
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Dry Run", "Failures", "Phases"})
	for _, r := range runs {
		phases := make([]string, 0, len(r.Steps))
		for _, s := range r.Steps {
			phases = append(phases, fmt.Sprintf("%s:%s", s.Phase, s.Status))
		}
		t.AppendRow(table.Row{
			shortID(r.ID),
			r.StartedAt.Format(time.RFC3339),
			r.Status,
			r.DryRun,
			r.Failures,
			strings.Join(phases, " "),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d runs", len(runs))})
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
