package submit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSubmit/taxonomy"
)

const simpleMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.org\r\n" +
	"Cc: carol@example.net\r\n" +
	"Subject: Hello\r\n" +
	"Message-Id: <abc@example.com>\r\n" +
	"In-Reply-To: <prev@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hi Bob.\r\n"

const multipartMessage = "From: alice@example.com\r\n" +
	"Subject: Report\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"See attached.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"r.csv\"\r\n" +
	"\r\n" +
	"a,b\r\n" +
	"--XYZ--\r\n"

func TestParseMessageSimple(t *testing.T) {
	msg, err := ParseMessage([]byte(simpleMessage), "alice@example.com", []string{"bob@example.org", "dave@example.org"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.From.Address != "alice@example.com" || msg.From.Name != "Alice" {
		t.Fatalf("from = %+v", msg.From)
	}
	if len(msg.To) != 2 || msg.To[1].Address != "dave@example.org" {
		t.Fatalf("envelope recipients should become To: %+v", msg.To)
	}
	if len(msg.Cc) != 1 || msg.Cc[0].Address != "carol@example.net" {
		t.Fatalf("cc = %+v", msg.Cc)
	}
	if msg.Subject != "Hello" || !strings.Contains(msg.Text, "Hi Bob.") {
		t.Fatalf("subject/text = %q / %q", msg.Subject, msg.Text)
	}
	if msg.MessageID != "abc@example.com" {
		t.Fatalf("message id = %q", msg.MessageID)
	}
	if msg.Headers["In-Reply-To"] != "<prev@example.com>" {
		t.Fatalf("headers = %v", msg.Headers)
	}
	if msg.Size != len(simpleMessage) {
		t.Fatalf("size = %d", msg.Size)
	}
}

func TestParseMessageAttachments(t *testing.T) {
	msg, err := ParseMessage([]byte(multipartMessage), "alice@example.com", []string{"bob@example.org"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if a.Filename != "r.csv" || a.ContentType != "text/csv" || a.Inline {
		t.Fatalf("attachment = %+v", a)
	}
}

func TestParseMessageFallsBackToEnvelopeSender(t *testing.T) {
	raw := "Subject: no from\r\n\r\nbody\r\n"
	msg, err := ParseMessage([]byte(raw), "env@example.com", []string{"bob@example.org"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.From.Address != "env@example.com" {
		t.Fatalf("from = %+v", msg.From)
	}
}

func TestParseMessageValidation(t *testing.T) {
	_, err := ParseMessage([]byte(simpleMessage), "alice@example.com", nil)
	var se *Error
	if !errors.As(err, &se) || se.Category != taxonomy.CategoryValidation {
		t.Fatalf("expected validation error for no recipients, got %v", err)
	}

	raw := "Subject: x\r\n\r\nbody\r\n"
	_, err = ParseMessage([]byte(raw), "not-an-email", []string{"bob@example.org"})
	if CategoryOf(err) != taxonomy.CategoryValidation {
		t.Fatalf("expected validation error for bad sender, got %v", err)
	}
	if got := ReplyFor(err); got.Code != taxonomy.CodeSyntaxParams {
		t.Fatalf("reply = %s", got)
	}
}

func TestReadLimited(t *testing.T) {
	if _, err := ReadLimited(strings.NewReader("12345"), 4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	data, err := ReadLimited(strings.NewReader("1234"), 4)
	if err != nil || string(data) != "1234" {
		t.Fatalf("data=%q err=%v", data, err)
	}
	if data, _ := ReadLimited(strings.NewReader("unbounded"), 0); string(data) != "unbounded" {
		t.Fatalf("data=%q", data)
	}
}

func testMessage() *Message {
	return &Message{
		From: Address{Address: "alice@example.com"},
		To:   []Address{{Address: "bob@example.org"}},
		Text: "hi",
	}
}

func TestHTTPSubmitterSuccess(t *testing.T) {
	var gotAuth string
	var gotMsg Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotMsg)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"q-123"}`))
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL, nil, time.Second)
	r, err := s.Submit(context.Background(), testMessage(), "am_secret")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.ID != "q-123" {
		t.Fatalf("receipt id = %q", r.ID)
	}
	if gotAuth != "Bearer am_secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotMsg.From.Address != "alice@example.com" {
		t.Fatalf("payload = %+v", gotMsg)
	}
}

func TestHTTPSubmitterErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		category taxonomy.Category
		code     taxonomy.Code
	}{
		{"nested code", http.StatusBadRequest, `{"error":{"code":"domain_not_verified","message":"verify example.com"}}`, taxonomy.CategoryDomainNotVerified, taxonomy.CodeMailboxUnavailable},
		{"flat code", http.StatusTooManyRequests, `{"code":"rate_limit","message":"slow down"}`, taxonomy.CategoryRateLimit, taxonomy.CodeLocalError},
		{"status only", http.StatusRequestEntityTooLarge, `too big`, taxonomy.CategoryPayloadTooLarge, taxonomy.CodeExceededStorage},
		{"unknown code uses status", http.StatusForbidden, `{"code":"weird","message":"no"}`, taxonomy.CategoryPermission, taxonomy.CodeMailboxUnavailable},
		{"server error", http.StatusInternalServerError, ``, taxonomy.CategorySystemError, taxonomy.CodeLocalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPSubmitter(srv.URL, nil, time.Second).Submit(context.Background(), testMessage(), "am_x")
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if se.Category != tc.category || se.Status != tc.status {
				t.Fatalf("category=%s status=%d", se.Category, se.Status)
			}
			if got := ReplyFor(err); got.Code != tc.code {
				t.Fatalf("reply = %s", got)
			}
		})
	}
}

func TestHTTPSubmitterTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPSubmitter(srv.URL, nil, 0).Submit(ctx, testMessage(), "am_x")
	if CategoryOf(err) != taxonomy.CategoryTimeout {
		t.Fatalf("category = %s (%v)", CategoryOf(err), err)
	}
}

func TestHTTPSubmitterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPSubmitter(url, nil, time.Second).Submit(context.Background(), testMessage(), "am_x")
	if CategoryOf(err) != taxonomy.CategoryServiceUnavailable {
		t.Fatalf("category = %s (%v)", CategoryOf(err), err)
	}
	if !ReplyFor(err).Retryable {
		t.Fatal("unreachable endpoint should map to a retryable reply")
	}
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(1)
	r, err := q.Submit(context.Background(), testMessage(), "am_x")
	if err != nil || r.ID == "" {
		t.Fatalf("submit: %v %+v", err, r)
	}
	if _, err := q.Submit(context.Background(), testMessage(), "am_x"); CategoryOf(err) != taxonomy.CategoryQuotaExceeded {
		t.Fatalf("expected quota error, got %v", err)
	}
	if _, err := NewMemoryQueue(0).Submit(context.Background(), testMessage(), ""); CategoryOf(err) != taxonomy.CategoryAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if q.Len() != 1 || q.Messages()[0].ID != r.ID {
		t.Fatalf("messages = %+v", q.Messages())
	}
}

func TestReplyForUntypedError(t *testing.T) {
	if got := ReplyFor(errors.New("recipient not found")); got.Code != taxonomy.CodeMailboxUnavailable {
		t.Fatalf("keyword fallback reply = %s", got)
	}
	if got := ReplyFor(errors.New("kaboom")); got.Code != taxonomy.CodeLocalError || !got.Retryable {
		t.Fatalf("default reply = %s", got)
	}
}
