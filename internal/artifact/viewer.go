package artifact

import (
	"context"
	"errors"
	"sync"

	"ispl/internal/api"
	"ispl/internal/logging"
)

// ErrSuperseded is returned by Open when a later Open or Close overtook it.
var ErrSuperseded = errors.New("artifact open superseded")

// Fetcher retrieves artifact content from the backend.
type Fetcher interface {
	PolicyPDF(ctx context.Context, id int) (*api.Blob, error)
	PolicyMarkdown(ctx context.Context, id int) (string, error)
}

// Viewer keeps at most one active handle per surface.
type Viewer struct {
	fetcher Fetcher

	mu     sync.Mutex
	active *Handle
	gen    uint64
}

// NewViewer creates a viewer surface.
func NewViewer(f Fetcher) *Viewer {
	return &Viewer{fetcher: f}
}

// Open fetches the artifact and makes it the active handle. The previously
// active handle is closed before the fetch starts.
func (v *Viewer) Open(ctx context.Context, documentID int, kind Kind) (*Handle, error) {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	prev := v.active
	v.active = nil
	v.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	h, err := v.fetch(ctx, documentID, kind)
	if err != nil {
		logging.ArtifactWarn("failed to open %s artifact for document %d: %v", kind, documentID, err)
		return nil, err
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		_ = h.Close()
		return nil, ErrSuperseded
	}
	v.active = h
	h.mu.Lock()
	h.onClose = v.detach
	h.mu.Unlock()
	v.mu.Unlock()

	logging.Artifact("opened %s artifact for document %d (%d bytes)", kind, documentID, h.Size())
	return h, nil
}

func (v *Viewer) fetch(ctx context.Context, documentID int, kind Kind) (*Handle, error) {
	if kind == Binary {
		blob, err := v.fetcher.PolicyPDF(ctx, documentID)
		if err != nil {
			return nil, err
		}
		return newBinaryHandle(documentID, blob.Data, blob.ContentType)
	}
	text, err := v.fetcher.PolicyMarkdown(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return newTextHandle(documentID, text), nil
}

// Close releases h. Closing nil or an already closed handle is a no-op.
func (v *Viewer) Close(h *Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		logging.ArtifactWarn("%v", err)
	}
}

// Active returns the active handle, or nil.
func (v *Viewer) Active() *Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// CloseAll releases the active handle and supersedes any Open in flight.
func (v *Viewer) CloseAll() {
	v.mu.Lock()
	v.gen++
	h := v.active
	v.active = nil
	v.mu.Unlock()
	v.Close(h)
}

func (v *Viewer) detach(h *Handle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == h {
		v.active = nil
	}
}
