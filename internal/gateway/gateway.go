// Package gateway is the single path every backend call takes. A Caller is
// built from the resty Transport wrapped in middleware: request logging,
// bearer attachment with 401 eviction and stale-response discard, and
// response classification into the error kinds in errors.go.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"ispl/internal/logging"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout applies when neither the Request nor the Transport sets one.
const DefaultTimeout = 10 * time.Second

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Header http.Header

	// Body is JSON-encoded when set. Ignored for multipart calls.
	Body interface{}

	// Multipart sends a file plus scalar fields instead of a JSON body.
	Multipart *Multipart

	// Binary asks for the raw payload; the response is never JSON-decoded.
	Binary bool

	// Timeout overrides the transport default for this call.
	Timeout time.Duration

	// Anonymous calls never carry the session token and never evict it.
	// Used for login and registration.
	Anonymous bool
}

// Multipart is a file part plus scalar form fields.
type Multipart struct {
	FileField   string
	FileName    string
	ContentType string
	File        io.Reader
	Fields      map[string]string
}

func (r *Request) clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	return &out
}

// Response is a completed call with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Caller issues a Request.
type Caller interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f CallerFunc) Call(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// Middleware decorates a Caller.
type Middleware func(next Caller) Caller

// Chain wraps base so that mws[0] is the outermost layer.
func Chain(base Caller, mws ...Middleware) Caller {
	c := base
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// New builds the standard gateway: logging, session, classification, transport.
func New(t Caller, src TokenSource) Caller {
	return Chain(t, WithLogging(), WithSession(src), Classify())
}

// Transport performs the HTTP exchange with resty. It reports only
// transport-level failures; status codes are left to Classify.
type Transport struct {
	client  *resty.Client
	timeout time.Duration
}

// NewTransport creates a transport rooted at baseURL.
func NewTransport(baseURL string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{})

	return &Transport{client: client, timeout: timeout}
}

// Call implements Caller.
func (t *Transport) Call(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := t.client.R().SetContext(ctx)
	for k := range req.Header {
		r.SetHeader(k, req.Header.Get(k))
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}

	switch {
	case req.Multipart != nil:
		mp := req.Multipart
		if len(mp.Fields) > 0 {
			r.SetMultipartFormData(mp.Fields)
		}
		if mp.File != nil {
			r.SetMultipartField(mp.FileField, mp.FileName, mp.ContentType, mp.File)
		}
	case req.Body != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}
	if req.Binary {
		r.SetHeader("Accept", "*/*")
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, transportError(ctx, req, err)
	}

	return &Response{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.Body(),
	}, nil
}

// transportError classifies a failure where no response was received.
func transportError(ctx context.Context, req *Request, err error) error {
	re := &RequestError{Method: req.Method, Path: req.Path, Err: ErrNetworkUnreachable, Cause: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		re.Err = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		re.Err = ErrTimeout
	case errors.Is(err, context.Canceled):
		re.Err = context.Canceled
	}
	return re
}

// restyLogger routes resty's own diagnostics into the api category so they
// never reach the terminal.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logging.Get(logging.CategoryAPI).Error(format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logging.Get(logging.CategoryAPI).Warn(format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logging.Get(logging.CategoryAPI).Debug(format, v...) }
