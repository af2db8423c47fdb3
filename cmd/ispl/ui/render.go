package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ispl/internal/api"
	"ispl/internal/workflowlog"

	"github.com/charmbracelet/lipgloss"
)

// FormatTime renders a backend timestamp in local time, "-" when unset.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatMillis renders an optional execution time.
func FormatMillis(ms *int) string {
	if ms == nil {
		return "-"
	}
	return fmt.Sprintf("%d ms", *ms)
}

// PolicyTable lists documents. cursor marks the selected row; -1 marks none.
func PolicyTable(docs []api.Policy, cursor int) *Table {
	t := NewTable("", " ", "ID", "Company", "Product", "Category", "Type", "Level", "Created")
	for i, d := range docs {
		mark := " "
		if i == cursor {
			mark = "›"
		}
		t.AddRow(mark, strconv.Itoa(d.ID), d.Company, d.ProductName, d.Category, d.ProductType, d.SecurityLevel, FormatTime(d.CreatedAt.Time))
	}
	return t
}

// PolicyDetail renders one document record as markdown.
func PolicyDetail(p *api.Policy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.ProductName)
	fmt.Fprintf(&sb, "| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"ID", strconv.Itoa(p.ID)},
		{"Company", p.Company},
		{"Category", p.Category},
		{"Product type", p.ProductType},
		{"Sale status", p.SaleStatus},
		{"Security level", p.SecurityLevel},
		{"Created", FormatTime(p.CreatedAt.Time)},
	}
	for _, r := range rows {
		v := r[1]
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", r[0], v)
	}
	if p.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", p.Summary)
	}
	return sb.String()
}

// LogTable lists workflow steps with normalized statuses.
func LogTable(entries []api.WorkflowLog) *Table {
	t := NewTable("", "Workflow", "Step", "Status", "Time", "At", "Error")
	for _, e := range entries {
		t.AddRow(e.WorkflowID, e.StepName, workflowlog.NormalizeStatus(e.Status), FormatMillis(e.ExecutionTimeMs), FormatTime(e.CreatedAt.Time), e.ErrorMessage)
	}
	t.CellStyle = func(s Styles, col int, cell string) lipgloss.Style {
		if col == 2 {
			return s.StatusStyle(cell)
		}
		return s.Body
	}
	return t
}

// Sources renders search results as a markdown list.
func Sources(results []api.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s", r.DocumentName)
		if r.SourceLabel != "" {
			fmt.Fprintf(&sb, " (%s)", r.SourceLabel)
		}
		if r.PageNumber != nil {
			fmt.Fprintf(&sb, ", p. %d", *r.PageNumber)
		}
		fmt.Fprintf(&sb, " · %.0f%%\n", r.RelevanceScore*100)
	}
	return sb.String()
}

// AnalysisReport renders an image analysis outcome as markdown.
func AnalysisReport(res *api.AnalysisResult) string {
	var sb strings.Builder
	if res.FinalResponse != "" {
		sb.WriteString(res.FinalResponse)
		sb.WriteString("\n\n")
	}
	if res.ExtractedText != "" {
		sb.WriteString("**Extracted text**\n\n")
		for _, line := range strings.Split(strings.TrimSpace(res.ExtractedText), "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	}
	if res.ImageDescription != "" {
		sb.WriteString("**Description**\n\n")
		sb.WriteString(res.ImageDescription)
		sb.WriteString("\n\n")
	}
	sb.WriteString(Sources(res.MatchedDocuments))
	if res.WorkflowID != "" {
		fmt.Fprintf(&sb, "\n_workflow %s_\n", res.WorkflowID)
	}
	return sb.String()
}
