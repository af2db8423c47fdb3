// Package workflowlog loads workflow execution records and projects them
// locally. The server is never asked to filter.
package workflowlog

import (
	"context"
	"strings"
	"sync"

	"ispl/internal/api"
	"ispl/internal/flight"
	"ispl/internal/logging"
)

// Source fetches workflow logs.
type Source interface {
	WorkflowLogs(ctx context.Context, q api.LogQuery) ([]api.WorkflowLog, error)
}

// Viewer holds the last loaded set.
type Viewer struct {
	src   Source
	limit int

	flight  flight.Tracker
	mu      sync.RWMutex
	entries []api.WorkflowLog
}

// NewViewer creates a log viewer. limit caps the fetched set; zero leaves the
// server default.
func NewViewer(src Source, limit int) *Viewer {
	return &Viewer{src: src, limit: limit}
}

// Load fetches the complete set and replaces the snapshot. A failed load
// keeps the previous snapshot. Returns flight.ErrBusy if a load is pending.
func (v *Viewer) Load(ctx context.Context) ([]api.WorkflowLog, error) {
	tk, ok := v.flight.Begin()
	if !ok {
		return nil, flight.ErrBusy
	}

	entries, err := v.src.WorkflowLogs(ctx, api.LogQuery{Limit: v.limit})

	v.mu.Lock()
	current := v.flight.Finish(tk, err)
	if current && err == nil {
		v.entries = entries
	}
	v.mu.Unlock()

	if !current {
		return nil, flight.ErrStale
	}
	if err != nil {
		logging.WorkflowWarn("failed to load workflow logs: %v", err)
		return nil, err
	}
	logging.WorkflowDebug("loaded %d workflow log entries", len(entries))
	return Copy(entries), nil
}

// Entries returns the last loaded set.
func (v *Viewer) Entries() []api.WorkflowLog {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Copy(v.entries)
}

// Reset drops the snapshot; a load in flight is discarded when it returns.
func (v *Viewer) Reset() {
	v.mu.Lock()
	v.flight.Invalidate()
	v.entries = nil
	v.mu.Unlock()
}

// Loading reports whether a load is pending.
func (v *Viewer) Loading() bool { return v.flight.Busy() }

// Err is the error of the last load, if it failed.
func (v *Viewer) Err() error { return v.flight.Err() }

// Filter returns the entries belonging to workflowID, in order. An empty id
// selects everything.
func Filter(entries []api.WorkflowLog, workflowID string) []api.WorkflowLog {
	workflowID = strings.TrimSpace(workflowID)
	if workflowID == "" {
		return Copy(entries)
	}
	out := make([]api.WorkflowLog, 0, len(entries))
	for _, e := range entries {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out
}

// WorkflowIDs returns the distinct workflow ids in first-seen order.
func WorkflowIDs(entries []api.WorkflowLog) []string {
	seen := make(map[string]bool, len(entries))
	var ids []string
	for _, e := range entries {
		if e.WorkflowID == "" || seen[e.WorkflowID] {
			continue
		}
		seen[e.WorkflowID] = true
		ids = append(ids, e.WorkflowID)
	}
	return ids
}

// NormalizeStatus folds a raw step status onto the four known values.
// Anything unrecognised is pending.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case api.StatusCompleted, "success", "succeeded":
		return api.StatusCompleted
	case api.StatusError, "failed", "failure":
		return api.StatusError
	case api.StatusRunning, "in_progress":
		return api.StatusRunning
	}
	return api.StatusPending
}

// Copy returns a shallow copy of entries.
func Copy(entries []api.WorkflowLog) []api.WorkflowLog {
	if entries == nil {
		return nil
	}
	out := make([]api.WorkflowLog, len(entries))
	copy(out, entries)
	return out
}
