package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ispl/internal/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TokenSource is the token store as seen by the gateway.
//
// Snapshot returns the token and the session epoch read together; the epoch
// changes on every login, logout and eviction. Evict clears the session only
// if it is still at the given epoch and reports whether it did.
type TokenSource interface {
	Snapshot() (token string, epoch uint64)
	Epoch() uint64
	Evict(epoch uint64) bool
}

// WithSession attaches the current bearer token, evicts the session on 401,
// and turns responses that outlived their session into ErrUnauthorized.
//
// Only calls that carried a token can go stale or evict: a 401 on an
// unauthenticated call says nothing about a session that did not exist
// when it was issued.
func WithSession(src TokenSource) Middleware {
	return func(next Caller) Caller {
		return CallerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if req.Anonymous {
				return next.Call(ctx, req)
			}

			token, epoch := src.Snapshot()
			out := req.clone()
			if token != "" {
				out.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := next.Call(ctx, out)
			if token == "" {
				return resp, err
			}

			if src.Epoch() != epoch {
				logging.APIDebug("discarding stale response for %s %s (epoch %d)", req.Method, req.Path, epoch)
				return nil, &RequestError{
					Method: req.Method,
					Path:   req.Path,
					Err:    ErrUnauthorized,
					Detail: "session ended while the request was in flight",
				}
			}
			if IsUnauthorized(err) && src.Evict(epoch) {
				logging.Session("session evicted after 401 from %s %s", req.Method, req.Path)
			}
			return resp, err
		})
	}
}

// Classify maps status codes onto the error kinds: 2xx passes through, 401 is
// ErrUnauthorized, anything else is a *ServerError carrying the body's detail.
func Classify() Middleware {
	return func(next Caller) Caller {
		return CallerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next.Call(ctx, req)
			if err != nil {
				return nil, err
			}
			if resp.Status >= 200 && resp.Status < 300 {
				return resp, nil
			}

			if resp.Status == http.StatusUnauthorized {
				detail, _ := structuredDetail(resp.Body)
				return nil, &RequestError{
					Method: req.Method,
					Path:   req.Path,
					Status: resp.Status,
					Detail: detail,
					Err:    ErrUnauthorized,
				}
			}

			detail := extractDetail(resp.Body, resp.Status)
			return nil, &RequestError{
				Method: req.Method,
				Path:   req.Path,
				Status: resp.Status,
				Detail: detail,
				Err:    &ServerError{Status: resp.Status, Detail: detail},
			}
		})
	}
}

// WithLogging records one structured entry per call. Headers and bodies are
// never logged.
func WithLogging() Middleware {
	return func(next Caller) Caller {
		return CallerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Call(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Duration("duration", time.Since(start)),
			}
			level := zapcore.DebugLevel
			switch {
			case resp != nil:
				fields = append(fields, zap.Int("status", resp.Status), zap.Int("bytes", len(resp.Body)))
			case err != nil:
				var re *RequestError
				if errors.As(err, &re) && re.Status != 0 {
					fields = append(fields, zap.Int("status", re.Status))
				}
				fields = append(fields, zap.Error(err))
				level = zapcore.WarnLevel
			}
			logging.Get(logging.CategoryAPI).Structured(level, "request", fields...)
			return resp, err
		})
	}
}
