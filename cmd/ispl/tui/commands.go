package tui

import (
	"fmt"
	"os"
	"path/filepath"

	"ispl/internal/analysis"
	"ispl/internal/artifact"
	"ispl/internal/auth"
	"ispl/internal/collection"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) waitForEviction() tea.Cmd {
	ch := m.evictions
	return func() tea.Msg {
		<-ch
		return evictedMsg{}
	}
}

func (m Model) verifyCmd() tea.Cmd {
	ctx, s := m.ctx, m.deps.Session
	return func() tea.Msg {
		sess, err := s.Verify(ctx)
		return verifyDoneMsg{session: sess, err: err}
	}
}

func (m Model) loginCmd(email, password string) tea.Cmd {
	ctx, s := m.ctx, m.deps.Session
	return func() tea.Msg {
		sess, err := s.Login(ctx, email, password)
		return loginDoneMsg{session: sess, err: err}
	}
}

func (m Model) registerCmd(email, password string) tea.Cmd {
	ctx, s := m.ctx, m.deps.Session
	return func() tea.Msg {
		return registerDoneMsg{email: email, err: s.Register(ctx, email, password, auth.DefaultRole)}
	}
}

func (m Model) submitCmd(text string) tea.Cmd {
	ctx, c := m.ctx, m.deps.Conversation
	return func() tea.Msg {
		c.Submit(ctx, text)
		return chatDoneMsg{}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctx, c := m.ctx, m.deps.Collection
	return func() tea.Msg {
		return refreshDoneMsg{err: c.Refresh(ctx)}
	}
}

// uploadCmd reads the file off disk inside the command so a large document
// does not stall the UI.
func (m Model) uploadCmd(path string, form collection.UploadForm) tea.Cmd {
	ctx, c := m.ctx, m.deps.Collection
	return func() tea.Msg {
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return uploadDoneMsg{err: fmt.Errorf("failed to read %s: %w", path, err)}
			}
			form.FileName = filepath.Base(path)
			form.Data = data
		}
		p, err := c.Upload(ctx, form)
		return uploadDoneMsg{policy: p, err: err}
	}
}

func (m Model) deleteCmd(id int) tea.Cmd {
	ctx, c := m.ctx, m.deps.Collection
	return func() tea.Msg {
		return deleteDoneMsg{id: id, err: c.Remove(ctx, id)}
	}
}

func (m Model) artifactCmd(id int, kind artifact.Kind) tea.Cmd {
	ctx, c := m.ctx, m.deps.Collection
	return func() tea.Msg {
		h, err := c.FetchArtifact(ctx, id, kind)
		return artifactDoneMsg{handle: h, err: err}
	}
}

func (m Model) logsCmd() tea.Cmd {
	ctx, v := m.ctx, m.deps.Logs
	return func() tea.Msg {
		_, err := v.Load(ctx)
		return logsDoneMsg{err: err}
	}
}

func (m Model) selectImageCmd(path string) tea.Cmd {
	a := m.deps.Analysis
	return func() tea.Msg {
		img, err := analysis.LoadImage(path)
		if err != nil {
			return imageSelectedMsg{err: err}
		}
		return imageSelectedMsg{err: a.Select(img)}
	}
}

func (m Model) analyzeCmd(query string) tea.Cmd {
	ctx, a := m.ctx, m.deps.Analysis
	return func() tea.Msg {
		a.SetQuery(query)
		_, err := a.AnalyzeSelected(ctx)
		return analysisDoneMsg{err: err}
	}
}
