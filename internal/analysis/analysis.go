// Package analysis drives the single-shot image analysis: pick an image, ask a
// question, get OCR text, a description, matching documents and an answer.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes is the default size ceiling for an analysed image.
const MaxImageBytes = 10 << 20

// Image is a selected file.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadImage reads path and sniffs its content type.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &Image{Name: filepath.Base(path), ContentType: sniff(data), Data: data}, nil
}

func sniff(data []byte) string {
	ct := mimetype.Detect(data).String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// Analyzer submits an analysis request.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req api.ImageRequest) (*api.AnalysisResult, error)
}

// Analysis is the orchestrator state: selection, preview, query, and the
// outcome of the latest run.
type Analysis struct {
	analyzer Analyzer
	maxBytes int

	flight flight.Tracker

	mu       sync.RWMutex
	selected *Image
	preview  *artifact.Handle
	query    string
	result   *api.AnalysisResult
	errMsg   string
}

// New creates an analysis orchestrator. maxBytes <= 0 selects MaxImageBytes.
func New(a Analyzer, maxBytes int) *Analysis {
	if maxBytes <= 0 {
		maxBytes = MaxImageBytes
	}
	return &Analysis{analyzer: a, maxBytes: maxBytes}
}

// validateImage checks presence, type and size. It fills in a missing
// content type by sniffing.
func (a *Analysis) validateImage(img *Image) error {
	if img == nil || img.Name == "" && len(img.Data) == 0 {
		return &flight.ValidationError{Field: "image", Reason: "no file selected"}
	}
	if len(img.Data) == 0 {
		return &flight.ValidationError{Field: "image", Reason: "file is empty"}
	}
	if img.ContentType == "" {
		img.ContentType = sniff(img.Data)
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return &flight.ValidationError{Field: "image", Reason: fmt.Sprintf("%s is not an image", img.ContentType)}
	}
	if len(img.Data) > a.maxBytes {
		return &flight.ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("file is %.1f MiB; the limit is %d MiB", float64(len(img.Data))/(1<<20), a.maxBytes>>20),
		}
	}
	return nil
}

// Select validates img and makes it the current selection with a fresh
// preview handle; the previous preview is released. An invalid image leaves
// the current selection unchanged.
func (a *Analysis) Select(img *Image) error {
	if err := a.validateImage(img); err != nil {
		return err
	}
	h, err := artifact.NewFileHandle(img.Name, img.Data, img.ContentType)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.preview
	a.selected = img
	a.preview = h
	a.result = nil
	a.errMsg = ""
	a.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	logging.ImageDebug("selected %s (%s, %d bytes)", img.Name, img.ContentType, len(img.Data))
	return nil
}

// SetQuery sets the question asked about the selected image.
func (a *Analysis) SetQuery(q string) {
	a.mu.Lock()
	a.query = q
	a.mu.Unlock()
}

// AnalyzeSelected runs Analyze on the current selection and query.
func (a *Analysis) AnalyzeSelected(ctx context.Context) (*api.AnalysisResult, error) {
	a.mu.RLock()
	img, q := a.selected, a.query
	a.mu.RUnlock()
	return a.Analyze(ctx, img, q)
}

// Analyze submits img and query. A run already in flight yields
// flight.ErrBusy; a failed precondition yields a *flight.ValidationError.
// Neither touches the network. Failures of the call itself are recorded as a
// user-facing message and returned unchanged, so errors.Is works against the
// gateway kinds.
func (a *Analysis) Analyze(ctx context.Context, img *Image, query string) (*api.AnalysisResult, error) {
	if a.flight.Busy() {
		return nil, flight.ErrBusy
	}
	if err := a.validateImage(img); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &flight.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	tk, ok := a.flight.Begin()
	if !ok {
		return nil, flight.ErrBusy
	}
	a.mu.Lock()
	a.errMsg = ""
	a.mu.Unlock()

	logging.Image("analyzing %s (%d bytes)", img.Name, len(img.Data))
	res, err := a.analyzer.AnalyzeImage(ctx, api.ImageRequest{
		FileName:    img.Name,
		ContentType: img.ContentType,
		Data:        img.Data,
		Query:       query,
	})

	a.mu.Lock()
	current := a.flight.Finish(tk, err)
	if current {
		if err != nil {
			a.result = nil
			a.errMsg = ErrorMessage(err)
		} else {
			a.result = res
		}
	}
	a.mu.Unlock()

	switch {
	case err != nil:
		logging.ImageWarn("analysis failed: %v", err)
		return nil, err
	case !current:
		return nil, flight.ErrStale
	}
	logging.Image("analysis %s complete: %d matched documents", res.WorkflowID, len(res.MatchedDocuments))
	return res, nil
}

// ErrorMessage normalizes an analysis failure for display.
func ErrorMessage(err error) string {
	if gateway.IsUnauthorized(err) {
		return "Your session has expired. Please log in again."
	}
	return "Image analysis failed: " + gateway.Detail(err)
}

// Reset clears selection, preview, query, result and error together. A run
// in flight is discarded when it returns.
func (a *Analysis) Reset() {
	a.mu.Lock()
	prev := a.preview
	a.selected = nil
	a.preview = nil
	a.query = ""
	a.result = nil
	a.errMsg = ""
	a.flight.Invalidate()
	a.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

// Selected returns the current image, or nil.
func (a *Analysis) Selected() *Image {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.selected
}

// Preview returns the preview handle of the selection, or nil.
func (a *Analysis) Preview() *artifact.Handle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.preview
}

// Query returns the current question.
func (a *Analysis) Query() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.query
}

// Result returns the latest result, or nil.
func (a *Analysis) Result() *api.AnalysisResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.result
}

// Error returns the latest failure message, or "".
func (a *Analysis) Error() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errMsg
}

// Analyzing reports whether a run is in flight.
func (a *Analysis) Analyzing() bool { return a.flight.Busy() }
