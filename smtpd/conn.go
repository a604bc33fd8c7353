package smtpd

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/submit"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

var errLineTooLong = errors.New("smtp: line exceeds limit")

// conn runs the command loop for one client connection. Every command is
// forwarded to the engine session identified by id; a STARTTLS upgrade
// replaces that session with a fresh one.
type conn struct {
	server *Server
	raw    net.Conn // accepted socket; closing it ends the connection
	nc     net.Conn // raw, or the TLS layer over it after STARTTLS
	text   *textproto.Conn

	id     string
	ctx    context.Context
	tls    bool
	errors int
}

func newConn(s *Server, nc net.Conn) *conn {
	c := &conn{server: s, raw: nc}
	_, c.tls = nc.(*tls.Conn)
	c.attach(nc)
	return c
}

// attach rebuilds the text layer on nc. Input buffered before a TLS upgrade
// is discarded with the old reader.
func (c *conn) attach(nc net.Conn) {
	c.nc = nc
	rwc := struct {
		io.Reader
		io.Writer
		io.Closer
	}{
		Reader: &lineLimitReader{r: nc, limit: c.server.cfg.MaxLineLength},
		Writer: nc,
		Closer: nc,
	}
	c.text = textproto.NewConn(rwc)
}

func (c *conn) engine() *goSubmit.Engine { return c.server.engine }

// open registers a new engine session for the connection.
func (c *conn) open() error {
	meta := session.Meta{
		RemoteAddr: c.nc.RemoteAddr().String(),
		LocalAddr:  c.nc.LocalAddr().String(),
		TLS:        c.tls,
	}
	c.id = c.server.newID()
	c.ctx = goSubmit.WithLogAttrs(context.Background(),
		slog.String("remote_addr", meta.RemoteAddr),
	)
	return c.engine().Connect(c.ctx, c.id, meta)
}

func (c *conn) serve() {
	defer c.close()

	if err := c.open(); err != nil {
		c.server.logger.Warn("smtp session rejected", "remote_addr", c.nc.RemoteAddr().String(), "error", err.Error())
		_ = c.reply(connectFailed)
		return
	}
	banner := taxonomy.Reply{Code: 220, Message: c.server.cfg.Domain + " ESMTP ready"}
	if c.reply(banner) != nil {
		return
	}

	for {
		if c.server.closing() {
			_ = c.reply(shuttingDown)
			return
		}
		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				_ = c.reply(lineTooLong)
			}
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		if !c.handle(strings.ToUpper(verb), arg) {
			return
		}
	}
}

func (c *conn) close() {
	if c.id != "" {
		if err := c.engine().Disconnect(c.ctx, c.id); err != nil {
			c.server.logger.Warn("smtp session not released", "session_id", c.id, "error", err.Error())
		}
	}
	_ = c.text.Close()
}

// handle dispatches one command. It returns false when the connection must
// be closed.
func (c *conn) handle(verb, arg string) bool {
	e := c.engine()

	switch verb {
	case "EHLO", "HELO":
		return c.hello(verb, arg)
	case "STARTTLS":
		return c.startTLS()
	case "AUTH":
		return c.auth(arg)
	case "MAIL":
		path, ok := pathArg(arg, "FROM:")
		if !ok {
			return c.reply(mailSyntax) == nil
		}
		return c.reply(e.Mail(c.ctx, c.id, path).Reply) == nil
	case "RCPT":
		path, ok := pathArg(arg, "TO:")
		if !ok {
			return c.reply(rcptSyntax) == nil
		}
		return c.reply(e.Rcpt(c.ctx, c.id, path).Reply) == nil
	case "DATA":
		return c.data()
	case "RSET":
		return c.reply(e.Reset(c.ctx, c.id).Reply) == nil
	case "NOOP":
		return c.reply(taxonomy.OK) == nil
	case "VRFY":
		return c.reply(cannotVerify) == nil
	case "QUIT":
		_ = c.reply(closing)
		return false
	default:
		c.errors++
		if limit := c.server.cfg.MaxInvalidCommands; limit > 0 && c.errors >= limit {
			_ = c.reply(tooManyErrors)
			return false
		}
		return c.reply(unknownCommand) == nil
	}
}

func (c *conn) hello(verb, arg string) bool {
	client := strings.TrimSpace(arg)
	if client == "" {
		return c.reply(helloSyntax) == nil
	}

	out := c.engine().Greet(c.ctx, c.id, client)
	if !out.Accepted || verb == "HELO" {
		return c.reply(out.Reply) == nil
	}
	lines := helloLines(c.server.cfg.Domain, client, c.extensions())
	return c.writeLine(multiline(out.Reply.Code, lines)) == nil
}

func (c *conn) extensions() []string {
	ext := []string{"PIPELINING", "8BITMIME", "ENHANCEDSTATUSCODES"}
	if limit := c.server.cfg.MaxMessageBytes; limit > 0 {
		ext = append(ext, fmt.Sprintf("SIZE %d", limit))
	}
	if c.server.cfg.TLSConfig != nil && !c.tls {
		ext = append(ext, "STARTTLS")
	}
	if c.authAllowed() {
		ext = append(ext, "AUTH "+strings.Join(mechanisms, " "))
	}
	return ext
}

func (c *conn) authAllowed() bool {
	return c.tls || c.server.cfg.AllowInsecureAuth
}

// startTLS upgrades the connection. RFC 3207 requires the server to forget
// everything learned before the handshake, so the engine session is closed
// and a new one opened in its place.
func (c *conn) startTLS() bool {
	switch {
	case c.server.cfg.TLSConfig == nil:
		return c.reply(tlsUnavailable) == nil
	case c.tls:
		return c.reply(tlsActive) == nil
	}
	if c.reply(tlsReady) != nil {
		return false
	}

	tc := tls.Server(c.nc, c.server.cfg.TLSConfig)
	if d := c.server.cfg.ReadTimeout; d > 0 {
		_ = c.nc.SetDeadline(time.Now().Add(d))
	}
	if err := tc.Handshake(); err != nil {
		c.server.logger.Debug("tls handshake failed", "session_id", c.id, "error", err.Error())
		return false
	}
	_ = c.nc.SetDeadline(time.Time{})

	if err := c.engine().Disconnect(c.ctx, c.id); err != nil {
		c.server.logger.Warn("smtp session not released", "session_id", c.id, "error", err.Error())
	}
	c.id = ""
	c.tls = true
	c.attach(tc)
	if err := c.open(); err != nil {
		c.server.logger.Warn("smtp session rejected", "remote_addr", c.nc.RemoteAddr().String(), "error", err.Error())
		_ = c.reply(connectFailed)
		return false
	}
	return true
}

// auth runs a SASL exchange and relays the engine's verdict, including the
// 235 on success.
func (c *conn) auth(arg string) bool {
	mech, initial, _ := strings.Cut(strings.TrimSpace(arg), " ")
	mech = strings.ToUpper(mech)
	if mech == "" {
		return c.reply(authSyntax) == nil
	}
	if !c.authAllowed() {
		return c.reply(tlsRequired) == nil
	}
	if out, ok := c.authExpected(); !ok {
		return c.reply(out.Reply) == nil
	}

	var result goSubmit.Outcome
	authenticate := func(principal, secret string) error {
		result = c.engine().Auth(c.ctx, c.id, principal, secret)
		return result.Err()
	}
	server := newSASLServer(mech, authenticate)
	if server == nil {
		return c.reply(mechUnsupported) == nil
	}

	var response []byte
	if initial != "" {
		r, err := decodeResponse(initial)
		if err != nil {
			return c.reply(badBase64) == nil
		}
		response = r
	}

	for {
		challenge, done, err := server.Next(response)
		if err != nil {
			return c.reply(replyFor(err)) == nil
		}
		if done {
			break
		}

		if err := c.writeLine("334 " + base64.StdEncoding.EncodeToString(challenge)); err != nil {
			return false
		}
		line, err := c.readLine()
		if err != nil {
			return false
		}
		if line == "*" {
			return c.reply(authCancelled) == nil
		}
		if response, err = decodeResponse(line); err != nil {
			return c.reply(badBase64) == nil
		}
	}
	return c.reply(result.Reply) == nil
}

// authExpected reports whether the session is waiting for AUTH. The engine
// refuses an out-of-sequence AUTH before it looks at credentials, so its
// reply is relayed without running the exchange.
func (c *conn) authExpected() (goSubmit.Outcome, bool) {
	s, err := c.engine().Session(c.ctx, c.id)
	if err == nil && session.Allowed(session.CmdAuth, s.State) {
		return goSubmit.Outcome{}, true
	}
	return c.engine().Auth(c.ctx, c.id, "", ""), false
}

func (c *conn) data() bool {
	e := c.engine()

	out := e.StartData(c.ctx, c.id)
	if err := c.reply(out.Reply); err != nil {
		return false
	}
	if !out.Accepted {
		return true
	}

	body := &sizeLimitReader{r: c.text.DotReader(), limit: c.server.cfg.MaxMessageBytes}
	out = e.CompleteData(c.ctx, c.id, body)
	if _, err := io.Copy(io.Discard, body.r); err != nil {
		return false
	}
	if !out.Accepted {
		e.Reset(c.ctx, c.id)
	}
	return c.reply(out.Reply) == nil
}

func (c *conn) readLine() (string, error) {
	if d := c.server.cfg.ReadTimeout; d > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(d))
	}
	return c.text.ReadLine()
}

func (c *conn) reply(r taxonomy.Reply) error {
	return c.writeLine(r.String())
}

func (c *conn) writeLine(line string) error {
	if d := c.server.cfg.WriteTimeout; d > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(d))
	}
	return c.text.PrintfLine("%s", line)
}

// pathArg extracts the path from "FROM:<addr> params" or "TO:<addr> params".
// ESMTP parameters are ignored.
func pathArg(arg, prefix string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if len(arg) < len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", false
	}
	path, _, _ := strings.Cut(strings.TrimSpace(arg[len(prefix):]), " ")
	return path, path != ""
}

func decodeResponse(s string) ([]byte, error) {
	if s == "=" {
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// lineLimitReader fails once a single line grows past limit bytes.
type lineLimitReader struct {
	r     io.Reader
	limit int
	cur   int
}

func (l *lineLimitReader) Read(b []byte) (int, error) {
	if l.limit > 0 && l.cur > l.limit {
		return 0, errLineTooLong
	}
	n, err := l.r.Read(b)
	if l.limit <= 0 {
		return n, err
	}
	for _, ch := range b[:n] {
		if ch == '\n' {
			l.cur = 0
			continue
		}
		l.cur++
		if l.cur > l.limit {
			return 0, errLineTooLong
		}
	}
	return n, err
}

// sizeLimitReader reports submit.ErrTooLarge once more than limit bytes of
// message data have been read.
type sizeLimitReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (s *sizeLimitReader) Read(b []byte) (int, error) {
	n, err := s.r.Read(b)
	s.read += int64(n)
	if s.limit > 0 && s.read > s.limit {
		return n, submit.ErrTooLarge
	}
	return n, err
}
