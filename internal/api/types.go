package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Security tiers accepted by search and upload.
const (
	SecurityPublic     = "public"
	SecuritySemiClosed = "semi_closed"
	SecurityClosed     = "closed"
)

// Workflow step statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Timestamp accepts the zone-less datetimes the backend emits as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// LoginResponse is the body of POST /auth/login. Older backends send "token",
// current ones "access_token".
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
}

// Bearer returns whichever token field the server filled.
func (r *LoginResponse) Bearer() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// RegisterResponse is the body of POST /auth/register.
type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

// Identity is the body of GET /auth/verify.
type Identity struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query         string `json:"query"`
	PolicyIDs     []int  `json:"policy_ids,omitempty"`
	Limit         int    `json:"limit"`
	SecurityLevel string `json:"security_level"`
}

// SearchResponse is the body of POST /search.
type SearchResponse struct {
	Answer  string         `json:"answer"`
	Results []SearchResult `json:"results"`
}

// SearchResult is one matched passage.
type SearchResult struct {
	DocumentID     int     `json:"policy_id"`
	DocumentName   string  `json:"policy_name"`
	SourceLabel    string  `json:"company"`
	RelevanceScore float64 `json:"relevance_score"`
	MatchedText    string  `json:"matched_text"`
	PageNumber     *int    `json:"page_number,omitempty"`
}

// UnmarshalJSON accepts both result shapes the backend has produced:
// relevance_score/matched_text and similarity_score/chunk_text.
func (r *SearchResult) UnmarshalJSON(b []byte) error {
	var wire struct {
		PolicyID        int      `json:"policy_id"`
		PolicyName      string   `json:"policy_name"`
		Company         string   `json:"company"`
		Source          string   `json:"source"`
		RelevanceScore  *float64 `json:"relevance_score"`
		SimilarityScore *float64 `json:"similarity_score"`
		MatchedText     string   `json:"matched_text"`
		ChunkText       string   `json:"chunk_text"`
		PageNumber      *int     `json:"page_number"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*r = SearchResult{
		DocumentID:   wire.PolicyID,
		DocumentName: wire.PolicyName,
		SourceLabel:  firstNonEmpty(wire.Company, wire.Source),
		MatchedText:  firstNonEmpty(wire.MatchedText, wire.ChunkText),
		PageNumber:   wire.PageNumber,
	}
	switch {
	case wire.RelevanceScore != nil:
		r.RelevanceScore = clamp01(*wire.RelevanceScore)
	case wire.SimilarityScore != nil:
		r.RelevanceScore = clamp01(*wire.SimilarityScore)
	}
	return nil
}

// Policy is a stored document record.
type Policy struct {
	ID            int       `json:"policy_id"`
	Company       string    `json:"company"`
	Category      string    `json:"category"`
	ProductType   string    `json:"product_type"`
	ProductName   string    `json:"product_name"`
	Summary       string    `json:"summary"`
	SaleStatus    string    `json:"sale_stat,omitempty"`
	SecurityLevel string    `json:"security_level"`
	CreatedAt     Timestamp `json:"created_at"`
}

// UploadRequest is the multipart form of POST /policies/upload.
type UploadRequest struct {
	FileName      string
	ContentType   string
	Data          []byte
	Company       string
	Category      string
	ProductType   string
	ProductName   string
	SecurityLevel string
}

// Blob is an undecoded binary payload.
type Blob struct {
	Data        []byte
	ContentType string
}

// ImageRequest is the multipart form of POST /image/analyze.
type ImageRequest struct {
	FileName    string
	ContentType string
	Data        []byte
	Query       string
}

// AnalysisResult is the body of POST /image/analyze.
type AnalysisResult struct {
	Success          bool           `json:"success"`
	WorkflowID       string         `json:"workflow_id"`
	Query            string         `json:"query"`
	ExtractedText    string         `json:"extracted_text"`
	ImageDescription string         `json:"image_description"`
	MatchedDocuments []SearchResult `json:"search_results"`
	FinalResponse    string         `json:"final_response"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// LogQuery narrows GET /workflow/logs. Zero values are omitted.
type LogQuery struct {
	WorkflowID string
	Limit      int
}

// WorkflowLog is one recorded workflow step.
type WorkflowLog struct {
	LogID           int                    `json:"log_id"`
	WorkflowID      string                 `json:"workflow_id"`
	StepName        string                 `json:"step_name"`
	Status          string                 `json:"status"`
	InputData       map[string]interface{} `json:"input_data,omitempty"`
	OutputData      map[string]interface{} `json:"output_data,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	ExecutionTimeMs *int                   `json:"execution_time,omitempty"`
	CreatedAt       Timestamp              `json:"created_at"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
