package collection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ispl/internal/api"
	"ispl/internal/artifact"
	"ispl/internal/flight"
	"ispl/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeBackend struct {
	mu        sync.Mutex
	docs      []api.Policy
	listCalls int32
	listErr   error
	uploads   []api.UploadRequest
	uploadErr error
	deleted   []int

	uploadEntered chan struct{}
	uploadRelease chan struct{}
}

func (f *fakeBackend) ListPolicies(ctx context.Context, skip, limit int) ([]api.Policy, error) {
	atomic.AddInt32(&f.listCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]api.Policy, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func (f *fakeBackend) GetPolicy(ctx context.Context, id int) (*api.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, &gateway.RequestError{Status: 404, Err: &gateway.ServerError{Status: 404, Detail: "Policy not found"}}
}

func (f *fakeBackend) UploadPolicy(ctx context.Context, req api.UploadRequest) (*api.Policy, error) {
	if f.uploadEntered != nil {
		f.uploadEntered <- struct{}{}
		<-f.uploadRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	p := api.Policy{ID: len(f.docs) + 1, Company: req.Company, ProductName: req.ProductName, SecurityLevel: req.SecurityLevel}
	f.docs = append(f.docs, p)
	return &p, nil
}

func (f *fakeBackend) DeletePolicy(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	kept := f.docs[:0]
	for _, d := range f.docs {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	f.docs = kept
	return nil
}

func validForm() UploadForm {
	return UploadForm{
		FileName:      "plan-a.pdf",
		Data:          []byte("%PDF-1.4"),
		Company:       "Acme",
		Category:      "Auto",
		ProductType:   "Term",
		ProductName:   "Plan A",
		SecurityLevel: "public",
	}
}

func TestUpload_SuccessRefreshesExactlyOnce(t *testing.T) {
	b := &fakeBackend{}
	c := New(b, nil)

	p, err := c.Upload(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, "Plan A", p.ProductName)

	assert.EqualValues(t, 1, atomic.LoadInt32(&b.listCalls))
	require.Len(t, c.Documents(), 1)
	assert.Equal(t, "Acme", c.Documents()[0].Company)
	assert.False(t, c.Uploading())
}

func TestUpload_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*UploadForm)
		field string
	}{
		{"no file", func(f *UploadForm) { f.Data = nil }, "file"},
		{"no company", func(f *UploadForm) { f.Company = "" }, "company"},
		{"blank category", func(f *UploadForm) { f.Category = "   " }, "category"},
		{"no product type", func(f *UploadForm) { f.ProductType = "" }, "product_type"},
		{"no product name", func(f *UploadForm) { f.ProductName = "" }, "product_name"},
		{"no level", func(f *UploadForm) { f.SecurityLevel = "" }, "security_level"},
		{"bad level", func(f *UploadForm) { f.SecurityLevel = "secret" }, "security_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			c := New(b, nil)
			form := validForm()
			tt.edit(&form)

			_, err := c.Upload(context.Background(), form)
			var ve *flight.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, b.uploads)
			assert.Zero(t, atomic.LoadInt32(&b.listCalls))
		})
	}
}

func TestUpload_SingleFlight(t *testing.T) {
	b := &fakeBackend{uploadEntered: make(chan struct{}, 1), uploadRelease: make(chan struct{})}
	c := New(b, nil)

	type result struct {
		p   *api.Policy
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := c.Upload(context.Background(), validForm())
		done <- result{p, err}
	}()
	<-b.uploadEntered

	assert.True(t, c.Uploading())
	second := validForm()
	second.ProductName = "Plan B"
	_, err := c.Upload(context.Background(), second)
	assert.ErrorIs(t, err, flight.ErrBusy)

	close(b.uploadRelease)
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "Plan A", r.p.ProductName)

	require.Len(t, b.uploads, 1)
	assert.Equal(t, "Plan A", b.uploads[0].ProductName)
	assert.EqualValues(t, 1, atomic.LoadInt32(&b.listCalls))
}

func TestUpload_ServerErrorSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/policies/upload" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Only PDF files are allowed"}`))
			return
		}
		t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()
	client := api.New(gateway.New(gateway.NewTransport(srv.URL, time.Second), noSession{}), api.Options{UploadTimeout: 5 * time.Second})
	c := New(client, nil)

	_, err := c.Upload(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, "Only PDF files are allowed", gateway.Detail(err))
	assert.Equal(t, err, c.UploadErr())
	assert.False(t, c.Uploading())
}

func TestRefresh_FailureKeepsSnapshot(t *testing.T) {
	b := &fakeBackend{docs: []api.Policy{{ID: 1, ProductName: "Plan A"}}}
	c := New(b, nil)
	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, c.Loaded())

	b.listErr = errors.New("network unreachable")
	assert.Error(t, c.Refresh(context.Background()))
	require.Len(t, c.Documents(), 1)
	assert.Equal(t, b.listErr, c.RefreshErr())

	b.listErr = nil
	require.NoError(t, c.Refresh(context.Background()))
	assert.NoError(t, c.RefreshErr())
}

func TestUpload_RefreshFailureIsRecordedNotReturned(t *testing.T) {
	b := &fakeBackend{listErr: errors.New("listing down")}
	c := New(b, nil)

	_, err := c.Upload(context.Background(), validForm())
	require.NoError(t, err)
	assert.EqualError(t, c.RefreshErr(), "listing down")
}

func TestRemove_DeletesRefreshesAndClosesOpenArtifact(t *testing.T) {
	b := &fakeBackend{docs: []api.Policy{{ID: 1, ProductName: "Plan A"}, {ID: 2, ProductName: "Plan B"}}}
	v := artifact.NewViewer(staticFetcher{})
	c := New(b, v)
	require.NoError(t, c.Refresh(context.Background()))

	h, err := c.FetchArtifact(context.Background(), 2, artifact.Text)
	require.NoError(t, err)

	require.NoError(t, c.Remove(context.Background(), 2))
	assert.Equal(t, []int{2}, b.deleted)
	require.Len(t, c.Documents(), 1)
	assert.Equal(t, 1, c.Documents()[0].ID)
	assert.True(t, h.Released())
	assert.EqualValues(t, 2, atomic.LoadInt32(&b.listCalls))
}

func TestGet(t *testing.T) {
	b := &fakeBackend{docs: []api.Policy{{ID: 5, ProductName: "Plan E"}}}
	c := New(b, nil)

	p, err := c.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Plan E", p.ProductName)

	_, err = c.Get(context.Background(), 6)
	assert.True(t, errors.Is(err, gateway.ErrServer))
}

func TestFetchArtifact_WithoutViewer(t *testing.T) {
	c := New(&fakeBackend{}, nil)
	_, err := c.FetchArtifact(context.Background(), 1, artifact.Binary)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	b := &fakeBackend{docs: []api.Policy{{ID: 1}}}
	v := artifact.NewViewer(staticFetcher{})
	c := New(b, v)
	require.NoError(t, c.Refresh(context.Background()))
	h, err := c.FetchArtifact(context.Background(), 1, artifact.Binary)
	require.NoError(t, err)

	c.Reset()
	assert.Empty(t, c.Documents())
	assert.False(t, c.Loaded())
	assert.True(t, h.Released())
}

type noSession struct{}

func (noSession) Snapshot() (string, uint64) { return "", 0 }
func (noSession) Epoch() uint64              { return 0 }
func (noSession) Evict(uint64) bool          { return false }

type staticFetcher struct{}

func (staticFetcher) PolicyPDF(ctx context.Context, id int) (*api.Blob, error) {
	return &api.Blob{Data: []byte("%PDF"), ContentType: "application/pdf"}, nil
}

func (staticFetcher) PolicyMarkdown(ctx context.Context, id int) (string, error) {
	return "# doc", nil
}
