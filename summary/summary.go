// Package summary renders the per-execution result aggregator output: a
// table of output counts/elapsed time per phase per pipeline, and an
// ASCII timeline strip. The timeline is best-effort diagnostic output:
// one marker per phase start on an 80-slice strip spanning the
// execution's min-to-max timestamps; exact column positions are not a
// stable contract.
package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/siteforge/pipeline/models"
)

// PhaseEntry is one completed phase's contribution to the summary. A
// skipped or failed phase simply has no PhaseEntry for that PhaseKind.
type PhaseEntry struct {
	Kind        models.PhaseKind
	OutputCount int
	Start       time.Time
	ElapsedMS   int64
}

// PipelineEntry collects every phase that ran (successfully) for one
// pipeline, in PhaseKind order.
type PipelineEntry struct {
	Name   string
	Phases []PhaseEntry
}

// Summary is the engine's own machine-readable view of one execution,
// independent of how it will be rendered.
type Summary struct {
	Pipelines []PipelineEntry
}

const timelineSlices = 80

// Render produces a human-readable rendition: a bordered table of
// per-pipeline/per-phase output counts and elapsed milliseconds, followed
// by an ASCII timeline strip marking each phase's start with its letter
// (I/P/T/O) and continuation with '-'.
func Render(s Summary) string {
	if len(s.Pipelines) == 0 {
		return "(no phases executed)"
	}

	var b strings.Builder
	b.WriteString(renderTable(s))
	b.WriteString("\n\n")
	b.WriteString(renderTimeline(s))
	return b.String()
}

func renderTable(s Summary) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	var rows []string
	rows = append(rows, headerStyle.Render(fmt.Sprintf("%-20s %-12s %10s %12s", "Pipeline", "Phase", "Outputs", "Elapsed(ms)")))

	for _, p := range s.Pipelines {
		for _, ph := range p.Phases {
			rows = append(rows, cellStyle.Render(fmt.Sprintf("%-20s %-12s %10d %12d", p.Name, ph.Kind, ph.OutputCount, ph.ElapsedMS)))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Render(strings.Join(rows, "\n"))
}

func renderTimeline(s Summary) string {
	minT, maxT, any := timeSpan(s)
	if !any {
		return ""
	}
	span := maxT.Sub(minT)
	if span <= 0 {
		span = time.Nanosecond
	}

	var b strings.Builder
	for _, p := range s.Pipelines {
		strip := make([]byte, timelineSlices)
		for i := range strip {
			strip[i] = ' '
		}

		for _, ph := range p.Phases {
			startSlice := int(float64(ph.Start.Sub(minT)) / float64(span) * float64(timelineSlices-1))
			if startSlice < 0 {
				startSlice = 0
			}
			if startSlice >= timelineSlices {
				startSlice = timelineSlices - 1
			}
			strip[startSlice] = ph.Kind.Letter()
			endSlice := int(float64(ph.Start.Add(time.Duration(ph.ElapsedMS)*time.Millisecond).Sub(minT)) / float64(span) * float64(timelineSlices-1))
			for i := startSlice + 1; i <= endSlice && i < timelineSlices; i++ {
				if strip[i] == ' ' {
					strip[i] = '-'
				}
			}
		}

		b.WriteString(fmt.Sprintf("%-20s |%s|\n", p.Name, string(strip)))
	}
	return b.String()
}

func timeSpan(s Summary) (minT, maxT time.Time, any bool) {
	for _, p := range s.Pipelines {
		for _, ph := range p.Phases {
			if !any || ph.Start.Before(minT) {
				minT = ph.Start
			}
			end := ph.Start.Add(time.Duration(ph.ElapsedMS) * time.Millisecond)
			if !any || end.After(maxT) {
				maxT = end
			}
			any = true
		}
	}
	return minT, maxT, any
}

// SortedPipelineNames returns the pipeline names present in s, sorted, for
// deterministic test assertions over map-derived summaries.
func SortedPipelineNames(s Summary) []string {
	names := make([]string, 0, len(s.Pipelines))
	for _, p := range s.Pipelines {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
