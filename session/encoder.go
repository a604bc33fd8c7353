package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/MrEthical07/goSubmit/credential"
)

const sessionFormatVersionCurrent = 1

// ErrCorrupt is returned by Decode for truncated or malformed payloads.
var ErrCorrupt = errors.New("corrupt session payload")

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) byte(b byte) {
	e.buf.WriteByte(b)
}

func (e *encoder) bool(v bool) {
	if v {
		e.byte(1)
		return
	}
	e.byte(0)
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		e.err = fmt.Errorf("field too long: %d bytes", len(s))
		return
	}
	_ = binary.Write(&e.buf, binary.BigEndian, uint16(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) u16(n int) {
	if e.err != nil {
		return
	}
	if n < 0 || n > math.MaxUint16 {
		e.err = fmt.Errorf("count out of range: %d", n)
		return
	}
	_ = binary.Write(&e.buf, binary.BigEndian, uint16(n))
}

func (e *encoder) u32(n int) {
	_ = binary.Write(&e.buf, binary.BigEndian, uint32(n))
}

// time writes UnixNano, with 0 reserved for the zero time.
func (e *encoder) time(t time.Time) {
	var n int64
	if !t.IsZero() {
		n = t.UnixNano()
	}
	_ = binary.Write(&e.buf, binary.BigEndian, n)
}

// Encode serialises a session into the versioned binary form stored in
// Redis.
func Encode(s *Session) ([]byte, error) {
	e := &encoder{}
	e.byte(sessionFormatVersionCurrent)
	e.str(s.ID)
	e.byte(byte(s.State))

	e.str(s.Meta.RemoteAddr)
	e.str(s.Meta.LocalAddr)
	e.str(s.Meta.Hostname)
	e.bool(s.Meta.TLS)

	e.time(s.CreatedAt)
	e.time(s.LastActivity)
	e.time(s.AuthenticatedAt)
	e.time(s.SenderSetAt)
	e.time(s.DataStartedAt)
	e.time(s.CompletedAt)

	e.bool(s.Identity != nil)
	if s.Identity != nil {
		e.str(s.Identity.PrincipalID)
		e.str(s.Identity.OrgID)
		e.str(s.Identity.Address)
		e.str(s.Identity.CredentialID)
	}
	e.bool(s.Authenticated)

	e.str(s.Sender)
	e.u16(len(s.Recipients))
	for _, r := range s.Recipients {
		e.str(r.Address)
		e.time(r.AddedAt)
	}
	e.str(s.MessageRef)
	e.u32(s.MessageCount)

	e.u16(len(s.History))
	for _, h := range s.History {
		e.byte(byte(h.From))
		e.byte(byte(h.To))
		e.byte(byte(h.Command))
		e.time(h.At)
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) byte() byte {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) bool() bool {
	return d.byte() == 1
}

func (d *decoder) str() string {
	n := d.u16()
	if d.err != nil {
		return ""
	}
	if n > d.r.Len() {
		d.err = io.ErrUnexpectedEOF
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
		return ""
	}
	return string(b)
}

func (d *decoder) u16() int {
	if d.err != nil {
		return 0
	}
	var n uint16
	if err := binary.Read(d.r, binary.BigEndian, &n); err != nil {
		d.err = err
	}
	return int(n)
}

func (d *decoder) u32() int {
	if d.err != nil {
		return 0
	}
	var n uint32
	if err := binary.Read(d.r, binary.BigEndian, &n); err != nil {
		d.err = err
	}
	return int(n)
}

func (d *decoder) time() time.Time {
	if d.err != nil {
		return time.Time{}
	}
	var n int64
	if err := binary.Read(d.r, binary.BigEndian, &n); err != nil {
		d.err = err
		return time.Time{}
	}
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Decode is the inverse of [Encode].
func Decode(data []byte) (*Session, error) {
	d := &decoder{r: bytes.NewReader(data)}

	version := d.byte()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, d.err)
	}
	if version != sessionFormatVersionCurrent {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorrupt, version)
	}

	s := &Session{}
	s.ID = d.str()
	s.State = State(d.byte())

	s.Meta.RemoteAddr = d.str()
	s.Meta.LocalAddr = d.str()
	s.Meta.Hostname = d.str()
	s.Meta.TLS = d.bool()

	s.CreatedAt = d.time()
	s.LastActivity = d.time()
	s.AuthenticatedAt = d.time()
	s.SenderSetAt = d.time()
	s.DataStartedAt = d.time()
	s.CompletedAt = d.time()

	if d.bool() {
		s.Identity = &credential.Identity{
			PrincipalID:  d.str(),
			OrgID:        d.str(),
			Address:      d.str(),
			CredentialID: d.str(),
		}
	}
	s.Authenticated = d.bool()

	s.Sender = d.str()
	if n := d.u16(); n > 0 && d.err == nil {
		s.Recipients = make([]Recipient, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			s.Recipients = append(s.Recipients, Recipient{Address: d.str(), AddedAt: d.time()})
		}
	}
	s.MessageRef = d.str()
	s.MessageCount = d.u32()

	if n := d.u16(); n > 0 && d.err == nil {
		s.History = make([]Transition, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			h := Transition{From: State(d.byte()), To: State(d.byte()), Command: Command(d.byte())}
			h.At = d.time()
			s.History = append(s.History, h)
		}
	}

	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, d.err)
	}
	if !s.State.Valid() {
		return nil, fmt.Errorf("%w: state %d", ErrCorrupt, s.State)
	}
	if s.Authenticated != (s.Identity != nil) {
		return nil, fmt.Errorf("%w: identity flag mismatch", ErrCorrupt)
	}
	return s, nil
}
