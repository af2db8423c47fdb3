package tui

import (
	"errors"
	"fmt"

	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/auth"
	"ispl/internal/collection"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"
	"ispl/internal/workflowlog"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const expiredText = "Your session has expired. Please log in again."

// Update routes a message to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.screen == screenMain && m.tab == tabChat {
			m.syncChat()
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case evictedMsg:
		// A login may already have replaced the evicted session.
		if !m.deps.Session.Current().Authenticated() {
			m.endSession(expiredText)
		}
		return m, m.waitForEviction()

	case verifyDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			var ae *auth.AuthError
			if errors.As(msg.err, &ae) && (ae.Kind == auth.KindSessionExpired || ae.Kind == auth.KindNotLoggedIn) {
				m.endSession(ae.Message())
				return m, nil
			}
			// Unreachable or failing server: keep the stored session.
			m.setStatus(auth.Message(msg.err), false)
		}
		if !m.deps.Session.Current().Authenticated() {
			return m, nil
		}
		return m, m.enterMain()

	case loginDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authErr = auth.Message(msg.err)
			return m, nil
		}
		m.authErr = ""
		m.login.reset(0)
		return m, m.enterMain()

	case registerDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authErr = auth.Message(msg.err)
			return m, nil
		}
		m.authErr = ""
		m.registering = false
		m.login.reset(0)
		m.login.set(0, msg.email)
		m.login.focusOn(1)
		m.setStatus("Account created. Log in to continue.", true)
		return m, nil

	case chatDoneMsg:
		m.syncChat()
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.setStatus("Could not load documents: "+errText(msg.err), false)
		}
		m.clampCursor()
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, flight.ErrBusy) {
				m.uploadErr = errText(msg.err)
			}
			return m, nil
		}
		m.uploadErr = ""
		m.upload = newUploadForm()
		m.policiesMode = policiesList
		m.setStatus(fmt.Sprintf("Uploaded %s.", msg.policy.ProductName), true)
		m.clampCursor()
		return m, nil

	case deleteDoneMsg:
		m.policiesMode = policiesList
		if msg.err != nil {
			if !errors.Is(msg.err, flight.ErrBusy) {
				m.setStatus("Delete failed: "+errText(msg.err), false)
			}
			return m, nil
		}
		if m.overlay != nil && m.overlay.Released() {
			m.overlay = nil
		}
		m.setStatus(fmt.Sprintf("Deleted document %d.", msg.id), true)
		m.clampCursor()
		return m, nil

	case artifactDoneMsg:
		if errors.Is(msg.err, artifact.ErrSuperseded) {
			return m, nil
		}
		m.overlayErr = ""
		if msg.err != nil {
			m.overlayErr = errText(msg.err)
			return m, nil
		}
		m.overlay = msg.handle
		m.fillOverlay()
		return m, nil

	case logsDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, flight.ErrBusy) && !errors.Is(msg.err, flight.ErrStale) {
			m.setStatus("Could not load workflow logs: "+errText(msg.err), false)
		}
		return m, nil

	case imageSelectedMsg:
		if msg.err != nil {
			m.imageErr = errText(msg.err)
			return m, nil
		}
		m.imageErr = ""
		m.image.focusOn(imageQuery)
		return m, nil

	case analysisDoneMsg:
		m.imageErr = ""
		var ve *flight.ValidationError
		if errors.As(msg.err, &ve) {
			m.imageErr = ve.Error()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Close()
		return m, tea.Quit
	}
	if m.screen == screenLogin {
		return m.handleLoginKey(msg)
	}

	if m.overlay != nil || m.overlayErr != "" {
		switch msg.String() {
		case "esc", "q":
			m.closeOverlay()
			return m, nil
		}
		var cmd tea.Cmd
		m.overlayView, cmd = m.overlayView.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+t":
		return m, m.switchTab((m.tab + 1) % tabCount)
	case "f1":
		return m, m.switchTab(tabChat)
	case "f2":
		return m, m.switchTab(tabPolicies)
	case "f3":
		return m, m.switchTab(tabWorkflow)
	case "f4":
		return m, m.switchTab(tabImage)
	case "ctrl+o":
		m.deps.Session.Logout()
		m.endSession("")
		m.setStatus("Logged out.", true)
		return m, nil
	}

	switch m.tab {
	case tabChat:
		return m.handleChatKey(msg)
	case tabPolicies:
		return m.handlePoliciesKey(msg)
	case tabWorkflow:
		return m.handleWorkflowKey(msg)
	case tabImage:
		return m.handleImageKey(msg)
	}
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+r" {
		m.registering = !m.registering
		m.authErr = ""
		return m, nil
	}
	cmd, submit := m.login.update(msg)
	if !submit || m.authBusy {
		return m, cmd
	}
	m.authBusy = true
	m.authErr = ""
	m.status = ""
	email, password := m.login.value(0), m.login.raw(1)
	if m.registering {
		return m, m.registerCmd(email, password)
	}
	return m, m.loginCmd(email, password)
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := m.chatInput.value(0)
		if text == "" || m.deps.Conversation.Pending() {
			return m, nil
		}
		m.chatInput.set(0, "")
		return m, m.submitCmd(text)
	case "ctrl+l":
		m.deps.Conversation.Clear()
		m.syncChat()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}
	cmd, _ := m.chatInput.update(msg)
	return m, cmd
}

func (m Model) handlePoliciesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.policiesMode {
	case policiesUpload:
		if msg.String() == "esc" {
			m.policiesMode = policiesList
			m.uploadErr = ""
			return m, nil
		}
		cmd, submit := m.upload.update(msg)
		if !submit || m.deps.Collection.Uploading() {
			return m, cmd
		}
		m.uploadErr = ""
		return m, m.uploadCmd(m.upload.value(uploadFile), collection.UploadForm{
			Company:       m.upload.value(uploadCompany),
			Category:      m.upload.value(uploadCategory),
			ProductType:   m.upload.value(uploadProductType),
			ProductName:   m.upload.value(uploadProductName),
			SecurityLevel: m.upload.value(uploadLevel),
		})

	case policiesConfirmDelete:
		switch msg.String() {
		case "y", "Y":
			if doc, ok := m.selectedDocument(); ok {
				return m, m.deleteCmd(doc.ID)
			}
			m.policiesMode = policiesList
		case "n", "N", "esc":
			m.policiesMode = policiesList
		}
		return m, nil
	}

	docs := m.deps.Collection.Documents()
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(docs)-1 {
			m.cursor++
		}
	case "r":
		return m, m.refreshCmd()
	case "u":
		m.policiesMode = policiesUpload
		m.uploadErr = ""
	case "x", "delete":
		if _, ok := m.selectedDocument(); ok && !m.deps.Collection.Removing() {
			m.policiesMode = policiesConfirmDelete
		}
	case "enter", "m":
		if doc, ok := m.selectedDocument(); ok {
			return m, m.artifactCmd(doc.ID, artifact.Text)
		}
	case "p":
		if doc, ok := m.selectedDocument(); ok {
			return m, m.artifactCmd(doc.ID, artifact.Binary)
		}
	}
	return m, nil
}

func (m Model) handleWorkflowKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		return m, m.logsCmd()
	case "f":
		m.logFilter = nextFilter(workflowlog.WorkflowIDs(m.deps.Logs.Entries()), m.logFilter)
	case "esc":
		m.logFilter = ""
	}
	return m, nil
}

// nextFilter cycles "" (all) through ids and back.
func nextFilter(ids []string, current string) string {
	if current == "" {
		if len(ids) == 0 {
			return ""
		}
		return ids[0]
	}
	for i, id := range ids {
		if id == current && i+1 < len(ids) {
			return ids[i+1]
		}
	}
	return ""
}

func (m Model) handleImageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.deps.Analysis.Reset()
		m.image.reset()
		m.imageErr = ""
		return m, nil
	case "enter":
		if m.deps.Analysis.Analyzing() {
			return m, nil
		}
		if m.image.focus == imagePath {
			if path := m.image.value(imagePath); path != "" {
				return m, m.selectImageCmd(path)
			}
			m.image.focusOn(imageQuery)
			return m, nil
		}
		return m, m.analyzeCmd(m.image.value(imageQuery))
	}
	cmd, _ := m.image.update(msg)
	return m, cmd
}

// enterMain shows the main screen and preloads the listing.
func (m *Model) enterMain() tea.Cmd {
	m.screen = screenMain
	m.syncChat()
	if m.tab == tabWorkflow {
		return m.logsCmd()
	}
	return m.refreshCmd()
}

func (m *Model) switchTab(t tab) tea.Cmd {
	m.tab = t
	m.status = ""
	switch t {
	case tabChat:
		m.syncChat()
	case tabPolicies:
		if !m.deps.Collection.Loaded() {
			return m.refreshCmd()
		}
	case tabWorkflow:
		if len(m.deps.Logs.Entries()) == 0 && !m.deps.Logs.Loading() {
			return m.logsCmd()
		}
	}
	return nil
}

// endSession drops every piece of session-scoped state and returns to the
// login screen. note is shown as the login error, if any.
func (m *Model) endSession(note string) {
	logging.Session("session ended, returning to login")
	m.deps.Conversation.Clear()
	m.deps.Collection.Reset()
	m.deps.Analysis.Reset()
	m.deps.Logs.Reset()

	m.screen = screenLogin
	m.tab = tabChat
	m.authBusy = false
	m.authErr = note
	m.status = ""
	m.login.reset(0)
	m.login.focusOn(1)

	m.chatInput.reset()
	m.chatView.SetContent("")
	m.policiesMode = policiesList
	m.cursor = 0
	m.upload = newUploadForm()
	m.uploadErr = ""
	m.overlay = nil
	m.overlayErr = ""
	m.logFilter = ""
	m.image.reset()
	m.imageErr = ""
}

func (m *Model) closeOverlay() {
	if v := m.deps.Collection.Viewer(); v != nil {
		v.CloseAll()
	}
	m.overlay = nil
	m.overlayErr = ""
	m.overlayView.SetContent("")
}

func (m *Model) fillOverlay() {
	h := m.overlay
	if h.Kind() == artifact.Text {
		text, err := h.Text()
		if err != nil {
			m.overlayErr = err.Error()
			return
		}
		m.overlayView.SetContent(m.render(text, m.overlayView.Width))
	} else {
		path, err := h.Path()
		if err != nil {
			m.overlayErr = err.Error()
			return
		}
		m.overlayView.SetContent(fmt.Sprintf(
			"Saved %s (%d bytes) for document %d.\n\nOpen it with your viewer:\n  %s\n\nThe file is removed when this view closes.",
			h.ContentType(), h.Size(), h.DocumentID(), path))
	}
	m.overlayView.GotoTop()
}

func (m *Model) syncChat() {
	m.chatView.SetContent(m.renderChat())
	m.chatView.GotoBottom()
}

func (m *Model) resize(w, h int) {
	if w < 20 {
		w = 20
	}
	if h < 10 {
		h = 10
	}
	m.width, m.height = w, h
	m.chatView.Width, m.chatView.Height = w-4, h-10
	m.overlayView.Width, m.overlayView.Height = w-4, h-6
	if m.overlay != nil {
		m.fillOverlay()
	}
	m.syncChat()
}

func (m *Model) setStatus(text string, ok bool) {
	m.status = text
	m.statusOK = ok
}

func (m *Model) clampCursor() {
	n := len(m.deps.Collection.Documents())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selectedDocument() (api.Policy, bool) {
	docs := m.deps.Collection.Documents()
	if m.cursor < 0 || m.cursor >= len(docs) {
		return api.Policy{}, false
	}
	return docs[m.cursor], true
}

// errText is the one-line form of an orchestrator error.
func errText(err error) string {
	var ve *flight.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	if gateway.IsUnauthorized(err) {
		return expiredText
	}
	return gateway.Detail(err)
}
