package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ispl/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Reason says why the stored token changed.
type Reason int

const (
	ReasonLogin Reason = iota + 1
	ReasonLogout
	ReasonEvicted
	ReasonExternal // another process rewrote or removed the token file
)

func (r Reason) String() string {
	switch r {
	case ReasonLogin:
		return "login"
	case ReasonLogout:
		return "logout"
	case ReasonEvicted:
		return "evicted"
	case ReasonExternal:
		return "external"
	}
	return "unknown"
}

// Change is delivered to subscribers after every token transition.
type Change struct {
	Reason   Reason
	Epoch    uint64
	HasToken bool
}

type tokenFile struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// TokenStore holds the session token and persists it to disk (0600) so it
// survives restarts. Every transition advances the epoch.
type TokenStore struct {
	path string

	mu     sync.RWMutex
	token  string
	epoch  uint64
	subs   map[int]func(Change)
	nextID int

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	doneCh  chan struct{}
}

// NewTokenStore loads the token persisted at path, if any. An empty path keeps
// the token in memory only. A file that does not parse is removed and the
// store starts logged out.
func NewTokenStore(path string) (*TokenStore, error) {
	s := &TokenStore{path: path, subs: make(map[int]func(Change))}
	if path == "" {
		return s, nil
	}
	tok, err := s.read()
	if errors.Is(err, errCorruptTokenFile) {
		logging.SessionWarn("discarding unreadable token file %s: %v", path, err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logging.SessionWarn("failed to remove token file %s: %v", path, rmErr)
		}
		tok, err = "", nil
	}
	if err != nil {
		return nil, err
	}
	s.token = tok
	if tok != "" {
		logging.SessionDebug("restored session token from %s", path)
	}
	return s, nil
}

// Path returns the backing file, or "" for a memory-only store.
func (s *TokenStore) Path() string { return s.path }

// Snapshot returns the token and epoch read together.
func (s *TokenStore) Snapshot() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.epoch
}

// Token returns the current token, "" when logged out.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Epoch returns the current session epoch.
func (s *TokenStore) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Set stores a new token and persists it.
func (s *TokenStore) Set(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	s.mu.Lock()
	if err := s.write(token); err != nil {
		s.mu.Unlock()
		return err
	}
	s.token = token
	s.epoch++
	ch := Change{Reason: ReasonLogin, Epoch: s.epoch, HasToken: true}
	s.mu.Unlock()

	s.notify(ch)
	return nil
}

// Clear removes the token unconditionally.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	if err := s.write(""); err != nil {
		logging.SessionWarn("failed to remove token file: %v", err)
	}
	s.token = ""
	s.epoch++
	ch := Change{Reason: ReasonLogout, Epoch: s.epoch}
	s.mu.Unlock()

	s.notify(ch)
}

// Evict removes the token only if the session is still at epoch. It reports
// whether anything was evicted.
func (s *TokenStore) Evict(epoch uint64) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.token == "" {
		s.mu.Unlock()
		return false
	}
	if err := s.write(""); err != nil {
		logging.SessionWarn("failed to remove token file: %v", err)
	}
	s.token = ""
	s.epoch++
	ch := Change{Reason: ReasonEvicted, Epoch: s.epoch}
	s.mu.Unlock()

	s.notify(ch)
	return true
}

// Subscribe registers fn for every change and returns a function that removes it.
// fn runs on the goroutine that caused the change and must not block.
func (s *TokenStore) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *TokenStore) notify(ch Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	logging.SessionDebug("token %s (epoch %d)", ch.Reason, ch.Epoch)
	for _, fn := range fns {
		fn(ch)
	}
}

// Watch follows the token file so a logout or login performed by another
// process is picked up. It returns once the watcher is installed; the loop
// stops when ctx is done or Close is called.
func (s *TokenStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.watcher = w
	s.doneCh = make(chan struct{})
	go s.watchLoop(ctx, w, s.doneCh)
	logging.SessionDebug("watching token file %s", s.path)
	return nil
}

// Close stops the watcher and waits for its loop to exit.
func (s *TokenStore) Close() error {
	s.watchMu.Lock()
	w, done := s.watcher, s.doneCh
	s.watcher, s.doneCh = nil, nil
	s.watchMu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func (s *TokenStore) watchLoop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	defer w.Close()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.SessionWarn("token watcher error: %v", err)
		}
	}
}

// reload adopts the file contents if they differ from memory.
func (s *TokenStore) reload() {
	s.mu.Lock()
	tok, err := s.read()
	if err != nil {
		s.mu.Unlock()
		logging.SessionWarn("ignoring unreadable token file: %v", err)
		return
	}
	if tok == s.token {
		s.mu.Unlock()
		return
	}
	s.token = tok
	s.epoch++
	ch := Change{Reason: ReasonExternal, Epoch: s.epoch, HasToken: tok != ""}
	s.mu.Unlock()

	logging.Session("token file changed by another process (logged in: %v)", ch.HasToken)
	s.notify(ch)
}

// errCorruptTokenFile marks a token file that exists but does not parse.
var errCorruptTokenFile = errors.New("corrupt token file")

func (s *TokenStore) read() (string, error) {
	if s.path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("%w: %v", errCorruptTokenFile, err)
	}
	return f.Token, nil
}

// write persists token atomically; an empty token removes the file.
func (s *TokenStore) write(token string) error {
	if s.path == "" {
		return nil
	}
	if token == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(tokenFile{Token: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
