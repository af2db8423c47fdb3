// Package collection drives document listing, upload and deletion. The
// listing snapshot is never patched: every successful mutation is followed by
// a full refresh.
package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"
)

// DefaultPageSize is the listing page requested by Refresh.
const DefaultPageSize = 100

// Backend is the subset of the API client the collection uses.
type Backend interface {
	ListPolicies(ctx context.Context, skip, limit int) ([]api.Policy, error)
	GetPolicy(ctx context.Context, id int) (*api.Policy, error)
	UploadPolicy(ctx context.Context, req api.UploadRequest) (*api.Policy, error)
	DeletePolicy(ctx context.Context, id int) error
}

// UploadForm is what the user fills in to add a document.
type UploadForm struct {
	FileName      string
	ContentType   string
	Data          []byte
	Company       string
	Category      string
	ProductType   string
	ProductName   string
	SecurityLevel string
}

// Validate checks every required field locally.
func (f UploadForm) Validate() error {
	if f.FileName == "" || len(f.Data) == 0 {
		return &flight.ValidationError{Field: "file", Reason: "no file selected"}
	}
	required := []struct{ field, value string }{
		{"company", f.Company},
		{"category", f.Category},
		{"product_type", f.ProductType},
		{"product_name", f.ProductName},
		{"security_level", f.SecurityLevel},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &flight.ValidationError{Field: r.field, Reason: "must not be empty"}
		}
	}
	switch f.SecurityLevel {
	case api.SecurityPublic, api.SecuritySemiClosed, api.SecurityClosed:
	default:
		return &flight.ValidationError{Field: "security_level", Reason: fmt.Sprintf("unknown level %q", f.SecurityLevel)}
	}
	return nil
}

// Collection holds the listing snapshot and the upload/remove guards.
type Collection struct {
	backend  Backend
	viewer   *artifact.Viewer
	pageSize int

	upload flight.Tracker
	remove flight.Tracker

	mu         sync.RWMutex
	documents  []api.Policy
	loaded     bool
	refreshSeq uint64
	refreshErr error
}

// New creates a collection. viewer may be nil when artifacts are not shown.
func New(b Backend, viewer *artifact.Viewer) *Collection {
	return &Collection{backend: b, viewer: viewer, pageSize: DefaultPageSize}
}

// Refresh fetches the listing and replaces the snapshot. On failure the
// previous snapshot stays visible and the error is returned and recorded.
// When refreshes overlap, the most recently started one wins.
func (c *Collection) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshSeq++
	seq := c.refreshSeq
	c.mu.Unlock()

	docs, err := c.backend.ListPolicies(ctx, 0, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.refreshSeq {
		return nil
	}
	if err != nil {
		c.refreshErr = err
		logging.PoliciesWarn("refresh failed: %v", err)
		return err
	}
	c.documents = docs
	c.loaded = true
	c.refreshErr = nil
	logging.PoliciesDebug("listing refreshed: %d documents", len(docs))
	return nil
}

// Get fetches a single document record.
func (c *Collection) Get(ctx context.Context, id int) (*api.Policy, error) {
	return c.backend.GetPolicy(ctx, id)
}

// Upload validates the form, sends it, and refreshes the listing once on
// success. A refresh failure after a successful upload is recorded on
// RefreshErr, not returned.
func (c *Collection) Upload(ctx context.Context, form UploadForm) (*api.Policy, error) {
	if c.upload.Busy() {
		return nil, flight.ErrBusy
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	tk, ok := c.upload.Begin()
	if !ok {
		return nil, flight.ErrBusy
	}

	logging.Policies("uploading %s (%d bytes) for %s / %s", form.FileName, len(form.Data), form.Company, form.ProductName)
	p, err := c.backend.UploadPolicy(ctx, api.UploadRequest{
		FileName:      form.FileName,
		ContentType:   form.ContentType,
		Data:          form.Data,
		Company:       strings.TrimSpace(form.Company),
		Category:      strings.TrimSpace(form.Category),
		ProductType:   strings.TrimSpace(form.ProductType),
		ProductName:   strings.TrimSpace(form.ProductName),
		SecurityLevel: form.SecurityLevel,
	})
	c.upload.Finish(tk, err)
	if err != nil {
		logging.PoliciesWarn("upload failed: %s", gateway.Detail(err))
		return nil, err
	}

	_ = c.Refresh(ctx)
	return p, nil
}

// Remove deletes a document and refreshes the listing. Confirmation is the
// caller's job.
func (c *Collection) Remove(ctx context.Context, id int) error {
	tk, ok := c.remove.Begin()
	if !ok {
		return flight.ErrBusy
	}
	err := c.backend.DeletePolicy(ctx, id)
	c.remove.Finish(tk, err)
	if err != nil {
		logging.PoliciesWarn("delete of %d failed: %s", id, gateway.Detail(err))
		return err
	}
	logging.Policies("deleted document %d", id)

	if c.viewer != nil {
		if h := c.viewer.Active(); h != nil && h.DocumentID() == id {
			c.viewer.Close(h)
		}
	}
	_ = c.Refresh(ctx)
	return nil
}

// FetchArtifact opens the document's artifact in the collection's viewer.
func (c *Collection) FetchArtifact(ctx context.Context, id int, kind artifact.Kind) (*artifact.Handle, error) {
	if c.viewer == nil {
		return nil, fmt.Errorf("no artifact viewer configured")
	}
	return c.viewer.Open(ctx, id, kind)
}

// Viewer returns the artifact viewer, possibly nil.
func (c *Collection) Viewer() *artifact.Viewer { return c.viewer }

// Documents returns a copy of the current snapshot.
func (c *Collection) Documents() []api.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]api.Policy, len(c.documents))
	copy(out, c.documents)
	return out
}

// Loaded reports whether any refresh has succeeded.
func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Uploading reports whether an upload is in flight.
func (c *Collection) Uploading() bool { return c.upload.Busy() }

// Removing reports whether a delete is in flight.
func (c *Collection) Removing() bool { return c.remove.Busy() }

// UploadErr is the error of the last upload, if it failed.
func (c *Collection) UploadErr() error { return c.upload.Err() }

// RefreshErr is the error of the last refresh, if it failed.
func (c *Collection) RefreshErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshErr
}

// Reset drops the snapshot and releases any open artifact. Used when the
// session ends.
func (c *Collection) Reset() {
	c.mu.Lock()
	c.refreshSeq++
	c.documents = nil
	c.loaded = false
	c.refreshErr = nil
	c.mu.Unlock()
	c.upload.Invalidate()
	c.remove.Invalidate()
	if c.viewer != nil {
		c.viewer.CloseAll()
	}
}
