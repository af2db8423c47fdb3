package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"ispl/internal/auth"
	"ispl/internal/config"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	assert.NoError(t, describe(nil))

	err := describe(fmt.Errorf("wrapped: %w", &flight.ValidationError{Field: "email", Reason: "must not be empty"}))
	assert.EqualError(t, err, "email: must not be empty")

	err = describe(&auth.AuthError{Kind: auth.KindInvalidCredentials, Err: gateway.ErrUnauthorized})
	assert.EqualError(t, err, "Incorrect email or password.")

	err = describe(fmt.Errorf("list: %w", gateway.ErrUnauthorized))
	assert.Contains(t, err.Error(), "ispl login")

	err = describe(&gateway.ServerError{Status: 500, Detail: "database is down"})
	assert.EqualError(t, err, "database is down")

	err = describe(errors.New("boom"))
	assert.EqualError(t, err, "boom")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	for _, s := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(s)
		assert.Error(t, err, s)
	}
}

func TestReadPassword(t *testing.T) {
	t.Cleanup(func() { authPassword = "" })
	t.Setenv("ISPL_PASSWORD", "")

	var prompt strings.Builder
	pw, err := readPassword(strings.NewReader("hunter2\r\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	assert.Equal(t, "Password: ", prompt.String())

	pw, err = readPassword(strings.NewReader(""), &prompt)
	require.NoError(t, err)
	assert.Empty(t, pw)

	t.Setenv("ISPL_PASSWORD", "from-env")
	pw, err = readPassword(strings.NewReader("ignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	authPassword = "from-flag"
	pw, err = readPassword(strings.NewReader("ignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", pw)
}

// statusBackend answers the three calls the status command fans out.
func statusBackend(t *testing.T, reject bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"token expired"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/verify":
			fmt.Fprint(w, `{"user_id":7,"email":"ana@example.com","role":"ADMIN"}`)
		case "/policies":
			fmt.Fprint(w, `[{"policy_id":1,"company":"Acme"},{"policy_id":2,"company":"Acme"},{"policy_id":3,"company":"Zeta"}]`)
		case "/workflow/logs":
			fmt.Fprint(w, `[
				{"log_id":1,"workflow_id":"wf-a","step_name":"ocr","status":"success"},
				{"log_id":2,"workflow_id":"wf-a","step_name":"search","status":"success"},
				{"log_id":3,"workflow_id":"wf-b","step_name":"ocr","status":"failed"}
			]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, baseURL string) *app {
	t.Helper()
	c := config.DefaultConfig()
	c.API.BaseURL = baseURL
	c.Session.TokenFile = filepath.Join(t.TempDir(), "session.json")
	c.Session.Watch = false

	a, err := newApp(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.store.Set("tok-1"))
	return a
}

func TestCollectStatus(t *testing.T) {
	a := newTestApp(t, statusBackend(t, false).URL)

	st, err := collectStatus(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, st.session.Identity)
	assert.Equal(t, "ana@example.com", st.session.Identity.Email)
	assert.Equal(t, 3, st.documents)
	assert.Equal(t, 2, st.workflows)
	assert.Equal(t, 3, st.steps)
}

func TestCollectStatus_Expired(t *testing.T) {
	a := newTestApp(t, statusBackend(t, true).URL)

	_, err := collectStatus(context.Background(), a)
	var ae *auth.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, auth.KindSessionExpired, ae.Kind)
	assert.False(t, a.session.Current().Authenticated())
}

func TestRequireSession(t *testing.T) {
	a := newTestApp(t, "http://127.0.0.1:1")
	assert.NoError(t, a.requireSession())

	a.session.Logout()
	err := a.requireSession()
	assert.EqualError(t, describe(err), "You are not logged in.")
}

// pagedPolicies serves total documents; with ignoreSkip every request gets
// the first page.
func pagedPolicies(t *testing.T, total int, ignoreSkip bool, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if ignoreSkip {
			skip = 0
		}
		var items []string
		for id := skip + 1; id <= total && id <= skip+limit; id++ {
			items = append(items, fmt.Sprintf(`{"policy_id":%d,"company":"Acme"}`, id))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "["+strings.Join(items, ",")+"]")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCountDocuments_Paginates(t *testing.T) {
	var calls int32
	a := newTestApp(t, pagedPolicies(t, 250, false, &calls).URL)

	n, err := countDocuments(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCountDocuments_StopsWhenSkipIgnored(t *testing.T) {
	var calls int32
	a := newTestApp(t, pagedPolicies(t, 500, true, &calls).URL)

	n, err := countDocuments(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNewApp_CorruptTokenFile(t *testing.T) {
	c := config.DefaultConfig()
	c.Session.TokenFile = filepath.Join(t.TempDir(), "session.json")
	c.Session.Watch = false
	require.NoError(t, os.WriteFile(c.Session.TokenFile, []byte("{not json"), 0600))

	a, err := newApp(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.EqualError(t, describe(a.requireSession()), "You are not logged in.")
	require.NoError(t, a.store.Set("tok-1"))
	assert.NoError(t, a.requireSession())
}

func TestRootCommand_ConfigShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "logging:\n  file: " + filepath.Join(dir, "ispl.log") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	t.Cleanup(func() { logging.Close() })

	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "show", "-c", path, "--api-url", "http://backend.test:9000"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		apiURL = ""
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "base_url: http://backend.test:9000")
	assert.Contains(t, out.String(), "# "+path)
}
