// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for the summary box
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

// statusStyle picks the color for a batch log status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "accepted", "single":
		return successStyle
	case "fallback":
		return warnStyle
	default:
		return errorStyle
	}
}

// FormatBatchSummary renders one line per report followed by the totals.
func FormatBatchSummary(w io.Writer, entries []BatchEntry) {
	counts := map[string]int{}
	var lines []string

	lines = append(lines, titleStyle.Render("LISREL extraction"))
	for _, e := range entries {
		status := e.Status()
		counts[status]++

		detail := ""
		switch {
		case e.Err != nil:
			detail = e.Err.Error()
		case e.Decision.Found():
			detail = fmt.Sprintf("line %d, criteria %d", e.Decision.StartIndex+1, e.Decision.Criteria)
		}

		lines = append(lines, fmt.Sprintf("%-8s %s %s",
			e.Participant,
			statusStyle(status).Render(fmt.Sprintf("%-9s", status)),
			dimStyle.Render(detail),
		))
	}

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("%s %d  %s %d  %s %d  %s %d",
		dimStyle.Render("Accepted:"), counts["accepted"]+counts["single"],
		dimStyle.Render("Fallback:"), counts["fallback"],
		dimStyle.Render("No model:"), counts["no_model"],
		dimStyle.Render("Errors:"), counts["error"],
	))

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
