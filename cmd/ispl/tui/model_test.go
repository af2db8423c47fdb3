package tui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ispl/cmd/ispl/ui"
	"ispl/internal/analysis"
	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/auth"
	"ispl/internal/collection"
	"ispl/internal/conversation"
	"ispl/internal/gateway"
	"ispl/internal/workflowlog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend is a scripted document-search server.
type backend struct {
	mu       sync.Mutex
	docs     []api.Policy
	deleted  []int
	loginErr int
	verify   int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON := func(status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	switch {
	case r.URL.Path == "/auth/login":
		if b.loginErr != 0 {
			writeJSON(b.loginErr, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(http.StatusOK, map[string]string{"access_token": "tok-1", "token_type": "bearer"})
	case r.URL.Path == "/auth/register":
		writeJSON(http.StatusCreated, map[string]interface{}{"message": "User registered", "user_id": 7})
	case r.URL.Path == "/auth/verify":
		if b.verify != 0 {
			writeJSON(b.verify, map[string]string{"detail": "Invalid token"})
			return
		}
		writeJSON(http.StatusOK, map[string]interface{}{"user_id": 1, "email": "ana@example.com", "role": "ADMIN"})
	case r.URL.Path == "/search":
		writeJSON(http.StatusOK, map[string]interface{}{
			"answer":  "Dental is covered.",
			"results": []map[string]interface{}{{"policy_id": 1, "policy_name": "PlanA", "company": "Acme", "relevance_score": 0.9}},
		})
	case r.URL.Path == "/policies":
		writeJSON(http.StatusOK, b.docs)
	case r.URL.Path == "/policies/1/md":
		writeJSON(http.StatusOK, map[string]string{"content": "# TermsOfPlanA"})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/policies/"):
		b.deleted = append(b.deleted, 1)
		b.docs = nil
		writeJSON(http.StatusOK, map[string]string{"message": "deleted"})
	case r.URL.Path == "/workflow/logs":
		writeJSON(http.StatusOK, []map[string]interface{}{
			{"log_id": 1, "workflow_id": "wf-a", "step_name": "ocr", "status": "success"},
			{"log_id": 2, "workflow_id": "wf-b", "step_name": "search", "status": "failed", "error_message": "boom"},
		})
	default:
		writeJSON(http.StatusNotFound, map[string]string{"detail": "Not Found"})
	}
}

func newTestModel(t *testing.T, b *backend, token string) (Model, *auth.TokenStore) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	store, err := auth.NewTokenStore("")
	require.NoError(t, err)
	if token != "" {
		require.NoError(t, store.Set(token))
	}
	client := api.New(gateway.New(gateway.NewTransport(srv.URL, 2*time.Second), store), api.Options{})
	deps := Deps{
		Session:      auth.NewManager(store, client),
		Conversation: conversation.New(client, conversation.Options{}),
		Collection:   collection.New(client, artifact.NewViewer(client)),
		Analysis:     analysis.New(client, 0),
		Logs:         workflowlog.NewViewer(client, 0),
		Styles:       ui.NewStyles(ui.DarkTheme()),
	}
	m := New(context.Background(), deps)
	m.render = func(md string, _ int) string { return md }
	t.Cleanup(m.Close)
	return m, store
}

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// run executes cmd and feeds its message back, once.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	return m
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func key(t *testing.T, m Model, k tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	return send(t, m, tea.KeyMsg{Type: k})
}

func runes(t *testing.T, m Model, s string) (Model, tea.Cmd) {
	t.Helper()
	return send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func login(t *testing.T, m Model) Model {
	t.Helper()
	m = typeText(t, m, "ana@example.com")
	m, _ = key(t, m, tea.KeyEnter)
	m = typeText(t, m, "secret")
	m, cmd := key(t, m, tea.KeyEnter)
	m, next := send(t, m, cmd())
	require.Equal(t, screenMain, m.screen, m.View())
	return run(t, m, next)
}

func TestLogin_Success(t *testing.T) {
	b := &backend{docs: []api.Policy{{ID: 1, ProductName: "PlanA"}}}
	m, store := newTestModel(t, b, "")
	assert.Contains(t, m.View(), "Log in")

	m = login(t, m)
	assert.Equal(t, "tok-1", store.Token())
	assert.True(t, m.deps.Collection.Loaded())
	view := m.View()
	assert.Contains(t, view, "Chat")
	assert.Contains(t, view, "Policies")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	m, store := newTestModel(t, &backend{loginErr: http.StatusUnauthorized}, "")

	m = typeText(t, m, "ana@example.com")
	m, _ = key(t, m, tea.KeyEnter)
	m = typeText(t, m, "wrong")
	m, cmd := key(t, m, tea.KeyEnter)
	assert.True(t, m.authBusy)
	m = run(t, m, cmd)

	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "Incorrect email or password.")
	assert.Empty(t, store.Token())
}

func TestLogin_EmptyEmailIsRejected(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m, _ = key(t, m, tea.KeyEnter)
	m, cmd := key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, "email: must not be empty", m.authErr)
}

func TestRegister_ReturnsToLoginWithEmail(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m, _ = key(t, m, tea.KeyCtrlR)
	assert.Contains(t, m.View(), "Create account")

	m = typeText(t, m, "new@example.com")
	m, _ = key(t, m, tea.KeyEnter)
	m = typeText(t, m, "pw")
	m, cmd := key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)

	assert.False(t, m.registering)
	assert.Equal(t, "new@example.com", m.login.value(0))
	assert.Equal(t, 1, m.login.focus)
	assert.Contains(t, m.View(), "Account created")
}

func TestStartup_VerifiesStoredSession(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "stored")
	require.Equal(t, screenMain, m.screen)
	assert.Contains(t, m.View(), "Verifying session")

	m, next := send(t, m, m.verifyCmd()())
	require.NotNil(t, next)
	assert.False(t, m.authBusy)
	assert.Contains(t, m.View(), "ana@example.com (ADMIN)")
}

func TestStartup_ExpiredStoredSession(t *testing.T) {
	m, store := newTestModel(t, &backend{verify: http.StatusUnauthorized}, "stale")

	m = run(t, m, m.verifyCmd())
	assert.Equal(t, screenLogin, m.screen)
	assert.Empty(t, store.Token())
	assert.Contains(t, m.View(), "Your session has expired")
}

func TestChat_SubmitShowsBothTurns(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)

	m = typeText(t, m, "Is dental covered?")
	m, cmd := key(t, m, tea.KeyEnter)
	assert.Empty(t, m.chatInput.value(0))
	m = run(t, m, cmd)

	msgs := m.deps.Conversation.Messages()
	require.Len(t, msgs, 2)
	view := m.View()
	assert.Contains(t, view, "Is dental covered?")
	assert.Contains(t, view, "Dental is covered.")
	assert.Contains(t, view, "PlanA")

	m, _ = key(t, m, tea.KeyCtrlL)
	assert.Empty(t, m.deps.Conversation.Messages())
}

func TestChat_BlankInputDoesNothing(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, cmd := key(t, m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Empty(t, m.deps.Conversation.Messages())
}

func TestEviction_ReturnsToLoginAndClearsState(t *testing.T) {
	b := &backend{docs: []api.Policy{{ID: 1, ProductName: "PlanA"}}}
	m, store := newTestModel(t, b, "")
	m = login(t, m)
	m = typeText(t, m, "question")
	m, cmd := key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	require.NotEmpty(t, m.deps.Conversation.Messages())

	require.True(t, store.Evict(store.Epoch()))
	m = run(t, m, m.waitForEviction())

	assert.Equal(t, screenLogin, m.screen)
	assert.Empty(t, m.deps.Conversation.Messages())
	assert.False(t, m.deps.Collection.Loaded())
	assert.Contains(t, m.View(), "Your session has expired. Please log in again.")
	assert.Equal(t, "ana@example.com", m.login.value(0), "email is kept for the next login")
}

func TestEviction_IgnoredAfterNewLogin(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = send(t, m, evictedMsg{})
	assert.Equal(t, screenMain, m.screen)
}

func TestLogout(t *testing.T) {
	m, store := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyCtrlO)

	assert.Equal(t, screenLogin, m.screen)
	assert.Empty(t, store.Token())
	assert.Contains(t, m.View(), "Logged out.")
}

func TestPolicies_ReadAndCloseArtifact(t *testing.T) {
	b := &backend{docs: []api.Policy{{ID: 1, ProductName: "PlanA", Company: "Acme"}}}
	m, _ := newTestModel(t, b, "")
	m = login(t, m)

	m, cmd := key(t, m, tea.KeyF2)
	assert.Nil(t, cmd, "listing already loaded at login")
	assert.Contains(t, m.View(), "PlanA")

	m, cmd = key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	require.NotNil(t, m.overlay)
	h := m.overlay
	assert.Contains(t, m.View(), "TermsOfPlanA")

	m, _ = key(t, m, tea.KeyEsc)
	assert.Nil(t, m.overlay)
	assert.True(t, h.Released())
	assert.Nil(t, m.deps.Collection.Viewer().Active())
}

func TestPolicies_DeleteWithConfirmation(t *testing.T) {
	b := &backend{docs: []api.Policy{{ID: 1, ProductName: "PlanA"}}}
	m, _ := newTestModel(t, b, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyF2)

	m, _ = runes(t, m, "x")
	assert.Contains(t, m.View(), "Delete \"PlanA\" (1)? y/n")
	m, cmd := runes(t, m, "n")
	assert.Nil(t, cmd)
	assert.Equal(t, policiesList, m.policiesMode)

	m, _ = runes(t, m, "x")
	m, cmd = runes(t, m, "y")
	m = run(t, m, cmd)
	assert.Equal(t, []int{1}, b.deleted)
	assert.Contains(t, m.View(), "Deleted document 1.")
	assert.Contains(t, m.View(), "No documents yet")
}

func TestPolicies_UploadValidationStaysLocal(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyF2)
	m, _ = runes(t, m, "u")
	require.Equal(t, policiesUpload, m.policiesMode)
	assert.Equal(t, api.SecurityPublic, m.upload.value(uploadLevel))

	var cmd tea.Cmd
	for i := 0; i < uploadLevel; i++ {
		m, cmd = key(t, m, tea.KeyEnter)
	}
	m, cmd = key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	assert.Contains(t, m.View(), "file: no file selected")

	m, _ = key(t, m, tea.KeyEsc)
	assert.Equal(t, policiesList, m.policiesMode)
}

func TestPolicies_UploadUnreadableFile(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyF2)
	m, _ = runes(t, m, "u")
	m = typeText(t, m, filepath.Join(t.TempDir(), "missing.pdf"))
	var cmd tea.Cmd
	for i := 0; i <= uploadLevel; i++ {
		m, cmd = key(t, m, tea.KeyEnter)
	}
	m = run(t, m, cmd)
	assert.Contains(t, m.uploadErr, "failed to read")
}

func TestWorkflow_LoadAndFilter(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)

	m, cmd := key(t, m, tea.KeyF3)
	m = run(t, m, cmd)
	view := m.View()
	assert.Contains(t, view, "wf-a")
	assert.Contains(t, view, "wf-b")
	assert.Contains(t, view, "completed")
	assert.Contains(t, view, "error")

	m, _ = runes(t, m, "f")
	assert.Equal(t, "wf-a", m.logFilter)
	m, _ = runes(t, m, "f")
	assert.Equal(t, "wf-b", m.logFilter)
	assert.NotContains(t, m.View(), "ocr")
	m, _ = runes(t, m, "f")
	assert.Empty(t, m.logFilter)
}

func TestImage_SelectMissingFile(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyF4)

	m = typeText(t, m, filepath.Join(t.TempDir(), "nope.png"))
	m, cmd := key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	assert.Contains(t, m.View(), "failed to read image")
	assert.Nil(t, m.deps.Analysis.Selected())
}

func TestImage_SelectThenBlankQuestion(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m = login(t, m)
	m, _ = key(t, m, tea.KeyF4)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	path := filepath.Join(t.TempDir(), "claim.png")
	require.NoError(t, os.WriteFile(path, png, 0600))

	m = typeText(t, m, path)
	m, cmd := key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	require.NotNil(t, m.deps.Analysis.Selected())
	assert.Equal(t, imageQuery, m.image.focus)
	assert.Contains(t, m.View(), "Selected claim.png")

	m, cmd = key(t, m, tea.KeyEnter)
	m = run(t, m, cmd)
	assert.Contains(t, m.View(), "query: must not be empty")

	m, _ = key(t, m, tea.KeyEsc)
	assert.Nil(t, m.deps.Analysis.Selected())
}

func TestNextFilter(t *testing.T) {
	ids := []string{"a", "b"}
	assert.Equal(t, "a", nextFilter(ids, ""))
	assert.Equal(t, "b", nextFilter(ids, "a"))
	assert.Equal(t, "", nextFilter(ids, "b"))
	assert.Equal(t, "", nextFilter(ids, "gone"))
	assert.Equal(t, "", nextFilter(nil, ""))
}

func TestUpdate_WindowSize(t *testing.T) {
	m, _ := newTestModel(t, &backend{}, "")
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 116, m.chatView.Width)

	m, _ = send(t, m, tea.WindowSizeMsg{Width: 0, Height: 0})
	assert.Equal(t, 20, m.width)
}
