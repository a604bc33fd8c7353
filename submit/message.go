package submit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jhillyerd/enmime"

	"github.com/MrEthical07/goSubmit/taxonomy"
)

type Address struct {
	Name    string `json:"name,omitempty" validate:"max=128"`
	Address string `json:"address" validate:"required,email,max=254"`
}

type Attachment struct {
	Filename    string `json:"filename,omitempty" validate:"max=255"`
	ContentType string `json:"content_type" validate:"required,max=255"`
	ContentID   string `json:"content_id,omitempty" validate:"max=255"`
	Data        []byte `json:"data"`
	Inline      bool   `json:"inline"`
}

// Message is the downstream submission payload. To holds the envelope
// recipients, which decide delivery; Cc is informational.
type Message struct {
	From        Address           `json:"from"`
	To          []Address         `json:"to" validate:"required,min=1,dive"`
	Cc          []Address         `json:"cc,omitempty" validate:"dive"`
	ReplyTo     []Address         `json:"reply_to,omitempty" validate:"dive"`
	Subject     string            `json:"subject" validate:"max=998"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty" validate:"dive"`
	Size        int               `json:"size"`
}

// ErrTooLarge is returned by ReadLimited when the payload exceeds the limit.
var ErrTooLarge = errors.New("message exceeds size limit")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func messageValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// passthroughHeaders are copied from the MIME header into Message.Headers.
var passthroughHeaders = []string{"In-Reply-To", "References", "X-Priority", "List-Unsubscribe"}

// ReadLimited reads r fully, failing with ErrTooLarge when it holds more than
// max bytes. A non-positive max disables the check.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ParseMessage converts a raw RFC 5322 message into a Message. The envelope
// sender is used when the From header is missing or unparsable; the
// envelope recipients always become To.
func ParseMessage(raw []byte, envelopeFrom string, envelopeTo []string) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, &Error{Category: taxonomy.CategoryValidation, Message: fmt.Sprintf("malformed message: %v", err)}
	}

	msg := &Message{
		Subject:   env.GetHeader("Subject"),
		Text:      env.Text,
		HTML:      env.HTML,
		MessageID: strings.Trim(env.GetHeader("Message-Id"), "<> "),
		Size:      len(raw),
	}

	msg.From = Address{Address: envelopeFrom}
	if from, err := mail.ParseAddress(env.GetHeader("From")); err == nil {
		msg.From = Address{Name: from.Name, Address: from.Address}
	}
	for _, rcpt := range envelopeTo {
		msg.To = append(msg.To, Address{Address: rcpt})
	}
	msg.Cc = headerAddresses(env, "Cc")
	msg.ReplyTo = headerAddresses(env, "Reply-To")

	for _, name := range passthroughHeaders {
		if v := env.GetHeader(name); v != "" {
			if msg.Headers == nil {
				msg.Headers = make(map[string]string)
			}
			msg.Headers[name] = v
		}
	}

	for _, p := range env.Attachments {
		msg.Attachments = append(msg.Attachments, attachmentOf(p, false))
	}
	for _, p := range env.Inlines {
		msg.Attachments = append(msg.Attachments, attachmentOf(p, true))
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func headerAddresses(env *enmime.Envelope, key string) []Address {
	list, err := env.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]Address, 0, len(list))
	for _, a := range list {
		out = append(out, Address{Name: a.Name, Address: a.Address})
	}
	return out
}

func attachmentOf(p *enmime.Part, inline bool) Attachment {
	ct := p.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Attachment{
		Filename:    p.FileName,
		ContentType: ct,
		ContentID:   p.ContentID,
		Data:        p.Content,
		Inline:      inline,
	}
}

// Validate checks the struct tags and returns a validation-category
// *Error describing the first failing field.
func (m *Message) Validate() error {
	err := messageValidator().Struct(m)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return &Error{
			Category: taxonomy.CategoryValidation,
			Message:  fmt.Sprintf("invalid field %s: failed %q", f.Namespace(), f.Tag()),
		}
	}
	return &Error{Category: taxonomy.CategoryValidation, Message: err.Error()}
}
