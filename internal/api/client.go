// Package api holds the typed request contracts of the search backend.
// Every method goes through a gateway.Caller, so token attachment, 401
// eviction and error classification apply uniformly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ispl/internal/gateway"
)

// Options carries the per-operation timeouts. Zero means the transport default.
type Options struct {
	UploadTimeout  time.Duration
	AnalyzeTimeout time.Duration
}

// Client is the typed backend client.
type Client struct {
	gw   gateway.Caller
	opts Options
}

// New creates a client over gw.
func New(gw gateway.Caller, opts Options) *Client {
	return &Client{gw: gw, opts: opts}
}

func (c *Client) do(ctx context.Context, req *gateway.Request, out interface{}) (*gateway.Response, error) {
	resp, err := c.gw.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
		}
	}
	return resp, nil
}

// Login exchanges credentials for a token. The call is anonymous: a rejected
// login never disturbs an existing session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	_, err := c.do(ctx, &gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      map[string]string{"email": email, "password": password},
		Anonymous: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password, role string) (*RegisterResponse, error) {
	var out RegisterResponse
	_, err := c.do(ctx, &gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register",
		Body:      map[string]string{"email": email, "password": password, "role": role},
		Anonymous: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify resolves the identity behind the current token.
func (c *Client) Verify(ctx context.Context) (*Identity, error) {
	var out Identity
	if _, err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/auth/verify"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a question against the indexed documents.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var out SearchResponse
	if _, err := c.do(ctx, &gateway.Request{Method: http.MethodPost, Path: "/search", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPolicies returns one page of stored documents.
func (c *Client) ListPolicies(ctx context.Context, skip, limit int) ([]Policy, error) {
	var out []Policy
	_, err := c.do(ctx, &gateway.Request{
		Method: http.MethodGet,
		Path:   "/policies",
		Query:  map[string]string{"skip": strconv.Itoa(skip), "limit": strconv.Itoa(limit)},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPolicy returns a single document record.
func (c *Client) GetPolicy(ctx context.Context, id int) (*Policy, error) {
	var out Policy
	if _, err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: policyPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPolicy sends a document with its metadata using the upload timeout.
func (c *Client) UploadPolicy(ctx context.Context, req UploadRequest) (*Policy, error) {
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	var out Policy
	_, err := c.do(ctx, &gateway.Request{
		Method: http.MethodPost,
		Path:   "/policies/upload",
		Multipart: &gateway.Multipart{
			FileField:   "file",
			FileName:    req.FileName,
			ContentType: contentType,
			File:        bytes.NewReader(req.Data),
			Fields: map[string]string{
				"company":        req.Company,
				"category":       req.Category,
				"product_type":   req.ProductType,
				"product_name":   req.ProductName,
				"security_level": req.SecurityLevel,
			},
		},
		Timeout: c.opts.UploadTimeout,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePolicy removes a document.
func (c *Client) DeletePolicy(ctx context.Context, id int) error {
	_, err := c.do(ctx, &gateway.Request{Method: http.MethodDelete, Path: policyPath(id)}, nil)
	return err
}

// PolicyPDF fetches the original document as raw bytes.
func (c *Client) PolicyPDF(ctx context.Context, id int) (*Blob, error) {
	resp, err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: policyPath(id) + "/pdf", Binary: true}, nil)
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/pdf"
	}
	return &Blob{Data: resp.Body, ContentType: ct}, nil
}

// PolicyMarkdown fetches the converted text of a document. The body's
// "content" field is used when present, otherwise the raw body.
func (c *Client) PolicyMarkdown(ctx context.Context, id int) (string, error) {
	resp, err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: policyPath(id) + "/md"}, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Content != nil {
		return *body.Content, nil
	}
	return string(resp.Body), nil
}

// AnalyzeImage submits an image and a question using the analysis timeout.
func (c *Client) AnalyzeImage(ctx context.Context, req ImageRequest) (*AnalysisResult, error) {
	var out AnalysisResult
	_, err := c.do(ctx, &gateway.Request{
		Method: http.MethodPost,
		Path:   "/image/analyze",
		Multipart: &gateway.Multipart{
			FileField:   "image",
			FileName:    req.FileName,
			ContentType: req.ContentType,
			File:        bytes.NewReader(req.Data),
			Fields:      map[string]string{"query": req.Query},
		},
		Timeout: c.opts.AnalyzeTimeout,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WorkflowLogs returns recorded workflow steps.
func (c *Client) WorkflowLogs(ctx context.Context, q LogQuery) ([]WorkflowLog, error) {
	query := map[string]string{}
	if id := strings.TrimSpace(q.WorkflowID); id != "" {
		query["workflow_id"] = id
	}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}
	var out []WorkflowLog
	if _, err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/workflow/logs", Query: query}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func policyPath(id int) string {
	return "/policies/" + strconv.Itoa(id)
}
