// Package artifact manages transient handles to fetched document artifacts.
// A handle is released exactly once; every accessor fails after release.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ispl/internal/logging"

	"github.com/google/uuid"
)

// Kind selects the response mode of an artifact fetch.
type Kind int

const (
	Binary Kind = iota // raw bytes, e.g. the original PDF
	Text               // extracted content, e.g. markdown
)

func (k Kind) String() string {
	if k == Binary {
		return "binary"
	}
	return "text"
}

// ParseKind accepts "binary"/"pdf" and "text"/"md".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "binary", "pdf":
		return Binary, nil
	case "text", "md", "markdown":
		return Text, nil
	}
	return 0, fmt.Errorf("unknown artifact kind %q", s)
}

// ErrReleased is returned by accessors of a released handle.
var ErrReleased = errors.New("artifact handle released")

// Handle is a display handle for fetched content. Binary content is spilled
// to a private temp file so external viewers can open it; text stays in memory.
type Handle struct {
	id          string
	documentID  int
	kind        Kind
	contentType string

	mu       sync.Mutex
	path     string
	text     string
	size     int
	released bool
	once     sync.Once
	onClose  func(*Handle)
}

func spill(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write artifact file: %w", err)
	}
	return f.Name(), nil
}

func newBinaryHandle(documentID int, data []byte, contentType string) (*Handle, error) {
	path, err := spill(fmt.Sprintf("ispl-doc-%d-*.pdf", documentID), data)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		id:          uuid.NewString(),
		documentID:  documentID,
		kind:        Binary,
		contentType: contentType,
		path:        path,
		size:        len(data),
	}
	logging.ArtifactDebug("opened %s handle %s for document %d at %s", h.kind, h.id, documentID, h.path)
	return h, nil
}

// NewFileHandle spills local content (an image preview) to a temp file
// handle that is not tied to any document.
func NewFileHandle(name string, data []byte, contentType string) (*Handle, error) {
	path, err := spill("ispl-preview-*"+filepath.Ext(name), data)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		id:          uuid.NewString(),
		kind:        Binary,
		contentType: contentType,
		path:        path,
		size:        len(data),
	}
	logging.ArtifactDebug("opened preview handle %s for %s", h.id, name)
	return h, nil
}

func newTextHandle(documentID int, content string) *Handle {
	h := &Handle{
		id:          uuid.NewString(),
		documentID:  documentID,
		kind:        Text,
		contentType: "text/markdown",
		text:        content,
		size:        len(content),
	}
	logging.ArtifactDebug("opened %s handle %s for document %d", h.kind, h.id, documentID)
	return h
}

func (h *Handle) ID() string          { return h.id }
func (h *Handle) DocumentID() int     { return h.documentID }
func (h *Handle) Kind() Kind          { return h.kind }
func (h *Handle) ContentType() string { return h.contentType }
func (h *Handle) Size() int           { return h.size }

// Path is the temp file of a binary handle.
func (h *Handle) Path() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return "", ErrReleased
	}
	if h.kind != Binary {
		return "", errors.New("text artifacts have no file")
	}
	return h.path, nil
}

// Bytes reads the content of the handle.
func (h *Handle) Bytes() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	if h.kind == Text {
		return []byte(h.text), nil
	}
	return os.ReadFile(h.path)
}

// Text returns the content of a text handle.
func (h *Handle) Text() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return "", ErrReleased
	}
	if h.kind != Text {
		return "", errors.New("binary artifacts have no text")
	}
	return h.text, nil
}

// Released reports whether Close has run.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Close releases the underlying resource. Repeated calls are no-ops.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		path := h.path
		h.path, h.text = "", ""
		onClose := h.onClose
		h.mu.Unlock()

		if path != "" {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = fmt.Errorf("failed to remove artifact file: %w", rmErr)
			}
		}
		if onClose != nil {
			onClose(h)
		}
		logging.ArtifactDebug("released handle %s", h.id)
	})
	return err
}
