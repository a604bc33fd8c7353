package goSubmit

import (
	"context"
	"io"
	"log/slog"

	"github.com/MrEthical07/goSubmit/internal/audit"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

// DiagnosticRecord is one entry written for a rejected command (and for
// a few notable successes). Detail holds the internal cause and is never
// sent to the client.
type DiagnosticRecord = audit.Event

// DiagnosticSink consumes diagnostic records. Sinks run on the
// dispatcher goroutine, never on the protocol path.
type DiagnosticSink = audit.Sink

// NewJSONDiagnosticSink writes one JSON object per record to w.
func NewJSONDiagnosticSink(w io.Writer) DiagnosticSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogDiagnosticSink logs records through l.
func NewSlogDiagnosticSink(l *slog.Logger) DiagnosticSink {
	return audit.NewSlogSink(l)
}

// NewChannelDiagnosticSink returns a sink and the channel it feeds.
func NewChannelDiagnosticSink(buffer int) (DiagnosticSink, <-chan DiagnosticRecord) {
	s := audit.NewChannelSink(buffer)
	return s, s.Events()
}

const (
	diagGreetRejected    = "greet_rejected"
	diagAuthRejected     = "auth_rejected"
	diagAuthSucceeded    = "auth_succeeded"
	diagSenderRejected   = "sender_rejected"
	diagRcptRejected     = "recipient_rejected"
	diagDataRejected     = "data_rejected"
	diagSubmitRejected   = "submission_rejected"
	diagMessageQueued    = "message_queued"
	diagResetRejected    = "reset_rejected"
	diagSessionReaped    = "session_reaped"
	diagSessionStoreFail = "session_store_failure"
)

// rejection describes one refused command before it is logged and
// dispatched.
type rejection struct {
	kind    string
	command session.Command
	reply   taxonomy.Reply
	reason  string
	detail  string
}

func (e *Engine) reject(ctx context.Context, s *session.Session, sessionID string, r rejection) Outcome {
	e.logger.LogAttrs(ctx, slog.LevelInfo, "smtp command rejected",
		append(logAttrsFromContext(ctx),
			slog.String("session_id", sessionID),
			slog.String("command", r.command.String()),
			slog.Int("code", int(r.reply.Code)),
			slog.String("reason", r.reason),
			slog.String("detail", r.detail),
		)...,
	)

	ev := DiagnosticRecord{
		Timestamp: e.now().UTC(),
		EventType: r.kind,
		SessionID: sessionID,
		Command:   r.command.String(),
		Success:   false,
		Reason:    r.reason,
		Detail:    r.detail,
		ReplyCode: int(r.reply.Code),
		Enhanced:  r.reply.Enhanced,
	}
	state := session.Init
	if s != nil {
		state = s.State
		ev.State = s.State.String()
		ev.RemoteAddr = s.Meta.RemoteAddr
		if s.Identity != nil {
			ev.PrincipalID = s.Identity.PrincipalID
			ev.OrgID = s.Identity.OrgID
		}
	}
	e.emitDiagnostic(ctx, ev)

	return Outcome{Reply: r.reply, Accepted: false, State: state, Reason: r.reason}
}

func (e *Engine) emitSuccess(ctx context.Context, s *session.Session, kind string, command session.Command, reply taxonomy.Reply, metadata map[string]string) {
	ev := DiagnosticRecord{
		Timestamp:  e.now().UTC(),
		EventType:  kind,
		SessionID:  s.ID,
		Command:    command.String(),
		State:      s.State.String(),
		RemoteAddr: s.Meta.RemoteAddr,
		Success:    true,
		ReplyCode:  int(reply.Code),
		Enhanced:   reply.Enhanced,
		Metadata:   metadata,
	}
	if s.Identity != nil {
		ev.PrincipalID = s.Identity.PrincipalID
		ev.OrgID = s.Identity.OrgID
	}
	e.emitDiagnostic(ctx, ev)
}

func (e *Engine) emitDiagnostic(ctx context.Context, ev DiagnosticRecord) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, ev)
}
