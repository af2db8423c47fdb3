package tui

import (
	"fmt"
	"strings"

	"ispl/cmd/ispl/ui"
	"ispl/internal/conversation"
	"ispl/internal/workflowlog"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current screen.
func (m Model) View() string {
	if m.screen == screenLogin {
		return m.loginView()
	}
	var sb strings.Builder
	sb.WriteString(m.headerView())
	sb.WriteString("\n")
	sb.WriteString(m.tabsView())
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(m.statusView())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	switch {
	case m.authBusy:
		sb.WriteString(m.spinner.View() + " Verifying session…\n")
	case m.overlay != nil || m.overlayErr != "":
		sb.WriteString(m.overlayPane())
	default:
		switch m.tab {
		case tabChat:
			sb.WriteString(m.chatPane())
		case tabPolicies:
			sb.WriteString(m.policiesPane())
		case tabWorkflow:
			sb.WriteString(m.workflowPane())
		case tabImage:
			sb.WriteString(m.imagePane())
		}
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Footer.Render(m.helpText()))
	return sb.String()
}

func (m Model) loginView() string {
	s := m.styles
	var sb strings.Builder
	title := "Log in"
	if m.registering {
		title = "Create account"
	}
	sb.WriteString(s.Header.Render("ispl"))
	sb.WriteString("\n\n")
	sb.WriteString(s.Title.Render(title))
	sb.WriteString("\n")
	sb.WriteString(m.login.view(s))
	sb.WriteString("\n")
	switch {
	case m.authBusy:
		sb.WriteString(m.spinner.View() + " Contacting server…\n")
	case m.authErr != "":
		sb.WriteString(s.Error.Render(m.authErr) + "\n")
	case m.status != "":
		sb.WriteString(m.statusView() + "\n")
	}
	sb.WriteString("\n")
	toggle := "ctrl+r: create an account"
	if m.registering {
		toggle = "ctrl+r: back to log in"
	}
	sb.WriteString(s.Footer.Render("enter: submit · tab: next field · " + toggle + " · ctrl+c: quit"))
	return sb.String()
}

func (m Model) headerView() string {
	who := "signed in"
	if id := m.deps.Session.Current().Identity; id != nil {
		who = id.Email
		if id.Role != "" {
			who += " (" + id.Role + ")"
		}
	}
	left := m.styles.Header.Render("ispl")
	right := m.styles.Muted.Render(who)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) tabsView() string {
	parts := make([]string, 0, tabCount)
	for t := tab(0); t < tabCount; t++ {
		label := fmt.Sprintf("F%d %s", t+1, t)
		if t == m.tab {
			parts = append(parts, m.styles.ActiveTab.Render(label))
		} else {
			parts = append(parts, m.styles.Tab.Render(label))
		}
	}
	return strings.Join(parts, "")
}

func (m Model) statusView() string {
	if m.statusOK {
		return m.styles.Success.Render(m.status)
	}
	return m.styles.Error.Render(m.status)
}

func (m Model) helpText() string {
	if m.overlay != nil || m.overlayErr != "" {
		return "↑/↓ scroll · esc: close"
	}
	common := " · ctrl+t: next tab · ctrl+o: log out · ctrl+c: quit"
	switch m.tab {
	case tabChat:
		return "enter: ask · ctrl+l: clear · pgup/pgdown: scroll" + common
	case tabPolicies:
		switch m.policiesMode {
		case policiesUpload:
			return "tab: next field · enter on last field: upload · esc: cancel"
		case policiesConfirmDelete:
			return "y: delete · n: keep"
		}
		return "↑/↓ select · enter: read · p: pdf · u: upload · x: delete · r: refresh" + common
	case tabWorkflow:
		return "r: reload · f: next workflow · esc: all workflows" + common
	case tabImage:
		return "enter on image: select · enter on question: analyze · esc: reset" + common
	}
	return common
}

func (m Model) renderChat() string {
	s := m.styles
	msgs := m.deps.Conversation.Messages()
	if len(msgs) == 0 && !m.deps.Conversation.Pending() {
		return s.Muted.Render("Ask a question about the indexed documents.")
	}
	width := m.chatView.Width - 4
	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleUser:
			sb.WriteString(s.Prompt.Render("You") + s.Muted.Render("  "+msg.Timestamp.Format("15:04")) + "\n")
			sb.WriteString(s.UserInput.Render(msg.Text) + "\n\n")
		default:
			if msg.Err != nil {
				sb.WriteString(s.Error.Render(msg.Text) + "\n\n")
				continue
			}
			body := msg.Text
			if src := ui.Sources(msg.Results); src != "" {
				body += "\n\n" + src
			}
			sb.WriteString(s.AgentResponse.Render(strings.TrimRight(m.render(body, width), "\n")) + "\n\n")
		}
	}
	if m.deps.Conversation.Pending() {
		sb.WriteString(m.spinner.View() + " Searching…\n")
	}
	return sb.String()
}

func (m Model) chatPane() string {
	return m.chatView.View() + "\n\n" + m.chatInput.view(m.styles)
}

func (m Model) policiesPane() string {
	s := m.styles
	c := m.deps.Collection
	var sb strings.Builder

	switch m.policiesMode {
	case policiesUpload:
		sb.WriteString(s.Title.Render("Upload a document"))
		sb.WriteString("\n")
		sb.WriteString(m.upload.view(s))
		switch {
		case c.Uploading():
			sb.WriteString("\n" + m.spinner.View() + " Uploading…\n")
		case m.uploadErr != "":
			sb.WriteString("\n" + s.Error.Render(m.uploadErr) + "\n")
		}
		return sb.String()
	case policiesConfirmDelete:
		if doc, ok := m.selectedDocument(); ok {
			sb.WriteString(s.Warning.Render(fmt.Sprintf("Delete %q (%d)? y/n", doc.ProductName, doc.ID)))
			sb.WriteString("\n\n")
		}
	}

	if c.Removing() {
		sb.WriteString(m.spinner.View() + " Deleting…\n")
	}
	docs := c.Documents()
	if !c.Loaded() && c.RefreshErr() == nil {
		sb.WriteString(m.spinner.View() + " Loading documents…\n")
		return sb.String()
	}
	sb.WriteString(ui.PolicyTable(docs, m.cursor).View(s, "No documents yet. Press u to upload one."))
	return sb.String()
}

func (m Model) workflowPane() string {
	s := m.styles
	v := m.deps.Logs
	var sb strings.Builder
	if v.Loading() {
		sb.WriteString(m.spinner.View() + " Loading workflow logs…\n")
	}
	entries := v.Entries()
	if m.logFilter != "" {
		sb.WriteString(s.Badge.Render("workflow "+m.logFilter) + "\n\n")
		entries = workflowlog.Filter(entries, m.logFilter)
	}
	if limit := m.height - 10; limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	sb.WriteString(ui.LogTable(entries).View(s, "No workflow runs recorded."))
	return sb.String()
}

func (m Model) imagePane() string {
	s := m.styles
	a := m.deps.Analysis
	var sb strings.Builder
	sb.WriteString(m.image.view(s))
	sb.WriteString("\n")

	if img := a.Selected(); img != nil {
		line := fmt.Sprintf("Selected %s · %s · %.1f KiB", img.Name, img.ContentType, float64(len(img.Data))/1024)
		if p := a.Preview(); p != nil {
			if path, err := p.Path(); err == nil {
				line += " · preview " + path
			}
		}
		sb.WriteString(s.Muted.Render(line) + "\n\n")
	}

	switch {
	case a.Analyzing():
		sb.WriteString(m.spinner.View() + " Analyzing image…\n")
	case m.imageErr != "":
		sb.WriteString(s.Error.Render(m.imageErr) + "\n")
	case a.Error() != "":
		sb.WriteString(s.Error.Render(a.Error()) + "\n")
	case a.Result() != nil:
		sb.WriteString(m.render(ui.AnalysisReport(a.Result()), m.width-4))
	}
	return sb.String()
}

func (m Model) overlayPane() string {
	if m.overlayErr != "" {
		return m.styles.Error.Render("Could not open the document: "+m.overlayErr) + "\n"
	}
	return m.overlayView.View() + "\n"
}
