// Package conversation drives the chat/search loop. A submit always produces
// exactly two messages: the user turn, appended before the network call, and
// an assistant turn carrying the answer or a fixed apology.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"ispl/internal/api"
	"ispl/internal/flight"
	"ispl/internal/gateway"
	"ispl/internal/logging"

	"github.com/google/uuid"
)

// Fixed assistant texts.
const (
	NoResultsText = "No matching results were found."
	ApologyText   = "Sorry, something went wrong while searching. Please try again."
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn. Messages are never modified once appended.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
	Results   []api.SearchResult

	// Err is the absorbed failure behind an apology turn.
	Err error
}

// Searcher runs a search.
type Searcher interface {
	Search(ctx context.Context, req api.SearchRequest) (*api.SearchResponse, error)
}

// Options fixes the search parameters of every submit.
type Options struct {
	Limit         int
	SecurityLevel string
}

// Conversation is the ordered message log plus the single-flight guard.
type Conversation struct {
	searcher Searcher
	opts     Options
	now      func() time.Time

	flight   flight.Tracker
	mu       sync.RWMutex
	messages []Message
}

// New creates an empty conversation.
func New(s Searcher, opts Options) *Conversation {
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.SecurityLevel == "" {
		opts.SecurityLevel = api.SecurityPublic
	}
	return &Conversation{searcher: s, opts: opts, now: time.Now}
}

// Submit asks text across all documents. See SubmitScoped.
func (c *Conversation) Submit(ctx context.Context, text string) bool {
	return c.SubmitScoped(ctx, text, nil)
}

// SubmitScoped asks text, restricted to policyIDs when non-empty. It blocks
// until the reply is appended and reports whether the submit was accepted.
// Empty text and submits while another is pending are ignored.
func (c *Conversation) SubmitScoped(ctx context.Context, text string, policyIDs []int) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	tk, ok := c.flight.Begin()
	if !ok {
		logging.ChatDebug("submit ignored: reply pending")
		return false
	}

	c.append(tk, Message{ID: uuid.NewString(), Role: RoleUser, Text: text, Timestamp: c.now()})

	resp, err := c.searcher.Search(ctx, api.SearchRequest{
		Query:         text,
		PolicyIDs:     policyIDs,
		Limit:         c.opts.Limit,
		SecurityLevel: c.opts.SecurityLevel,
	})

	reply := Message{ID: uuid.NewString(), Role: RoleAssistant, Timestamp: c.now()}
	switch {
	case err != nil:
		logging.ChatWarn("search failed: %v", err)
		reply.Text = ApologyText
		reply.Err = err
	case resp == nil:
		reply.Text = NoResultsText
	default:
		reply.Text = resp.Answer
		if strings.TrimSpace(reply.Text) == "" {
			reply.Text = NoResultsText
		}
		reply.Results = resp.Results
	}

	c.mu.Lock()
	current := c.flight.Finish(tk, err)
	if current {
		c.messages = append(c.messages, reply)
	}
	c.mu.Unlock()

	if !current {
		logging.ChatDebug("discarded reply for a cleared conversation")
	} else if err == nil {
		logging.ChatDebug("reply with %d results", len(reply.Results))
	}
	if gateway.IsUnauthorized(err) {
		logging.ChatWarn("search rejected: session ended")
	}
	return true
}

func (c *Conversation) append(tk flight.Ticket, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flight.Current(tk) {
		c.messages = append(c.messages, m)
	}
}

// Clear empties the log. A reply still in flight is discarded on arrival.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flight.Invalidate()
	c.messages = nil
}

// Messages returns a copy of the log in conversation order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Pending reports whether a reply is outstanding.
func (c *Conversation) Pending() bool { return c.flight.Busy() }

// LastError is the failure absorbed by the most recent reply, if any.
func (c *Conversation) LastError() error { return c.flight.Err() }
