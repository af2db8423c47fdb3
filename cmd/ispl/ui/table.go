package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders static rows with aligned columns. Cells wider than MaxCell
// are truncated with an ellipsis.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	MaxCell int

	// CellStyle, when set, styles body cells instead of Styles.Body.
	CellStyle func(s Styles, col int, cell string) lipgloss.Style
}

// NewTable creates a table with the given title and headers.
func NewTable(title string, headers ...string) *Table {
	return &Table{
		Title:   title,
		Headers: headers,
		Rows:    make([][]string, 0),
		MaxCell: 48,
	}
}

// AddRow appends a row. Missing trailing cells render empty.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// View renders the table. An empty table renders its empty text instead.
func (t *Table) View(styles Styles, empty string) string {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(styles.Title.Render(t.Title))
		sb.WriteString("\n")
	}
	if len(t.Rows) == 0 {
		sb.WriteString(styles.Muted.Render(empty))
		sb.WriteString("\n")
		return sb.String()
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := range widths {
			if w := lipgloss.Width(t.cell(row, i)); w > widths[i] {
				widths[i] = w
			}
		}
	}

	header := styles.Bold.Padding(0, 1)
	body := styles.Body.Padding(0, 1)
	sep := styles.Muted.Render("│")

	cols := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		cols[i] = header.Width(widths[i] + 2).Render(h)
	}
	sb.WriteString(strings.Join(cols, sep))
	sb.WriteString("\n")

	total := len(widths) - 1
	for _, w := range widths {
		total += w + 2
	}
	sb.WriteString(styles.Muted.Render(strings.Repeat("─", total)))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		for i := range t.Headers {
			c := t.cell(row, i)
			st := body
			if t.CellStyle != nil {
				st = t.CellStyle(styles, i, c).Padding(0, 1)
			}
			cols[i] = st.Width(widths[i] + 2).Render(c)
		}
		sb.WriteString(strings.Join(cols, sep))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (t *Table) cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return Truncate(row[i], t.MaxCell)
}

// Truncate shortens s to at most width display cells. width <= 0 disables it.
func Truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
