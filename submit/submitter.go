package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Receipt is returned for an accepted message.
type Receipt struct {
	ID         string
	AcceptedAt time.Time
}

// Submitter hands a message to the downstream delivery system on behalf of
// the credential that authenticated the session.
type Submitter interface {
	Submit(ctx context.Context, msg *Message, secret string) (Receipt, error)
}

// SubmitterFunc adapts a function to [Submitter].
type SubmitterFunc func(ctx context.Context, msg *Message, secret string) (Receipt, error)

func (f SubmitterFunc) Submit(ctx context.Context, msg *Message, secret string) (Receipt, error) {
	return f(ctx, msg, secret)
}

/* ==== HTTP ==== */

const maxErrorBody = 64 << 10

// HTTPSubmitter posts messages as JSON to a delivery API, authenticating
// with the session's credential secret as a bearer token.
type HTTPSubmitter struct {
	Endpoint  string
	Client    *http.Client
	UserAgent string
}

// NewHTTPSubmitter returns a submitter for endpoint. A nil client uses one
// with the given timeout.
func NewHTTPSubmitter(endpoint string, client *http.Client, timeout time.Duration) *HTTPSubmitter {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSubmitter{Endpoint: endpoint, Client: client, UserAgent: "goSubmit"}
}

type acceptedBody struct {
	ID string `json:"id"`
}

// errorBody accepts both {"code","message"} and {"error":{"code","message"}}.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *HTTPSubmitter) Submit(ctx context.Context, msg *Message, secret string) (Receipt, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, &Error{Category: taxonomy.CategoryValidation, Message: "encode message", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, &Error{Category: taxonomy.CategorySystemError, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Receipt{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Receipt{}, transportError(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ok acceptedBody
		_ = json.Unmarshal(body, &ok)
		if ok.ID == "" {
			ok.ID = uuid.NewString()
		}
		return Receipt{ID: ok.ID, AcceptedAt: time.Now()}, nil
	}

	return Receipt{}, statusError(resp.StatusCode, body)
}

func statusError(status int, body []byte) *Error {
	var eb errorBody
	code, message := "", strings.TrimSpace(string(body))
	if json.Unmarshal(body, &eb) == nil {
		code, message = eb.Code, eb.Message
		if eb.Error != nil {
			code, message = eb.Error.Code, eb.Error.Message
		}
	}
	category := taxonomy.ParseCategory(code)
	if category == taxonomy.CategoryUnknown {
		category = taxonomy.CategoryFromStatus(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Status: status, Category: category, Code: code, Message: message}
}

func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Category: taxonomy.CategoryTimeout, Message: "submission timed out", Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Category: taxonomy.CategoryTimeout, Message: "submission timed out", Err: err}
	}
	return &Error{Category: taxonomy.CategoryServiceUnavailable, Message: fmt.Sprintf("submission endpoint unreachable: %v", err), Err: err}
}

/* ==== IN-MEMORY ==== */

// Queued is one message accepted by a [MemoryQueue].
type Queued struct {
	ID         string
	Message    *Message
	AcceptedAt time.Time
}

// MemoryQueue is an in-process Submitter. It keeps accepted messages for
// inspection and refuses new ones once Capacity is reached.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []Queued
	capacity int
	now      func() time.Time
}

// NewMemoryQueue returns a queue holding at most capacity messages; zero
// means unbounded.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{capacity: capacity, now: time.Now}
}

func (q *MemoryQueue) Submit(ctx context.Context, msg *Message, secret string) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, transportError(ctx, err)
	}
	if secret == "" {
		return Receipt{}, &Error{Category: taxonomy.CategoryAuthentication, Message: "missing credential"}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return Receipt{}, &Error{Category: taxonomy.CategoryQuotaExceeded, Message: "queue full"}
	}
	r := Receipt{ID: uuid.NewString(), AcceptedAt: q.now()}
	q.items = append(q.items, Queued{ID: r.ID, Message: msg, AcceptedAt: r.AcceptedAt})
	return r, nil
}

// Messages returns a snapshot of accepted messages in order.
func (q *MemoryQueue) Messages() []Queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Queued(nil), q.items...)
}

// Len returns the number of accepted messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
