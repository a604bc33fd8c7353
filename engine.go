package goSubmit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSubmit/auth"
	"github.com/MrEthical07/goSubmit/credential"
	"github.com/MrEthical07/goSubmit/internal/audit"
	"github.com/MrEthical07/goSubmit/internal/rate"
	"github.com/MrEthical07/goSubmit/session"
	"github.com/MrEthical07/goSubmit/submit"
	"github.com/MrEthical07/goSubmit/taxonomy"
)

// Engine drives SMTP submission sessions. Each handler loads the session
// from the store, applies one command and writes it back, so the Engine
// itself holds no per-session state other than the secret vault.
//
// An Engine is safe for concurrent use. Commands for a single session are
// expected to arrive serially.
type Engine struct {
	config    Config
	machine   session.Machine
	sessions  session.Store
	pipeline  *auth.Pipeline
	limiter   *rate.Limiter
	submitter submit.Submitter
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	reaper    *session.Reaper
	vault     *secretVault

	closed    atomic.Bool
	closeOnce sync.Once
}

// faultReply is sent when the session store fails outside AUTH.
var faultReply = taxonomy.ForSubmission(taxonomy.CategorySystemError, "")

// Connect registers a new session for a freshly accepted connection.
func (e *Engine) Connect(ctx context.Context, id string, meta session.Meta) error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}

	s := session.New(id, meta, e.now())
	if err := e.sessions.Create(ctx, s); err != nil {
		if errors.Is(err, session.ErrExists) {
			return ErrSessionExists
		}
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}

	e.metricInc(MetricSessionOpened)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "smtp session opened",
		append(logAttrsFromContext(ctx),
			slog.String("session_id", id),
			slog.String("remote_addr", meta.RemoteAddr),
			slog.Bool("tls", meta.TLS),
		)...,
	)
	return nil
}

// Greet handles EHLO/HELO.
func (e *Engine) Greet(ctx context.Context, id, hostname string) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdGreet, diagGreetRejected, faultReply)
	if !ok {
		return out
	}

	if err := e.machine.Greet(s, hostname, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdGreet, diagGreetRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdGreet, faultReply); !ok {
		return out
	}

	e.metricInc(MetricGreet)
	return accepted(s, taxonomy.OK)
}

// Auth runs the authentication pipeline for the session. The secret is
// kept in memory for the lifetime of the session so that CompleteData can
// submit on the client's behalf.
func (e *Engine) Auth(ctx context.Context, id, principal, secret string) Outcome {
	start := time.Now()
	tempFault := taxonomy.ForReason(taxonomy.ReasonStoreUnavailable)

	s, out, ok := e.begin(ctx, id, session.CmdAuth, diagAuthRejected, tempFault)
	if !ok {
		return out
	}
	if err := e.machine.CanAuthenticate(s); err != nil {
		return e.machineRejection(ctx, s, session.CmdAuth, diagAuthRejected, err)
	}

	ip := remoteIP(s.Meta.RemoteAddr)
	// Malformed principals never reach Redis as key material; only the IP
	// counter applies to them.
	limitKey := principal
	if !credential.ValidPrincipalID(principal) {
		limitKey = ""
	}
	if e.limiter != nil {
		if err := e.limiter.CheckAuth(ctx, limitKey, ip); err != nil {
			reason := taxonomy.ReasonRateLimited
			detail := err.Error()
			if !errors.Is(err, rate.ErrRateLimited) {
				// Fail closed: an unreachable limiter must not lift the budget.
				reason = taxonomy.ReasonStoreUnavailable
			} else if limitKey != "" {
				if wait, werr := e.limiter.RetryAfter(ctx, limitKey); werr == nil && wait > 0 {
					detail += "; retry after " + wait.Round(time.Second).String()
				}
			}
			e.metricInc(MetricAuthRateLimited)
			return e.authRejection(ctx, s, reason, detail)
		}
	}

	identity, err := e.pipeline.Authenticate(ctx, principal, secret)
	e.metricObserve(MetricAuthLatency, time.Since(start))
	if err != nil {
		reason := auth.ReasonOf(err)
		if e.limiter != nil && taxonomy.CountsTowardLimit(reason) {
			if lerr := e.limiter.RecordFailure(ctx, limitKey, ip); lerr != nil && !errors.Is(lerr, rate.ErrRateLimited) {
				e.logger.LogAttrs(ctx, slog.LevelWarn, "auth failure not counted",
					append(logAttrsFromContext(ctx),
						slog.String("session_id", s.ID),
						slog.String("error", lerr.Error()),
					)...,
				)
			}
		}
		return e.authRejection(ctx, s, reason, err.Error())
	}

	if err := e.machine.Authenticate(s, identity, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdAuth, diagAuthRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdAuth, tempFault); !ok {
		return out
	}

	e.vault.put(s.ID, secret)
	if e.limiter != nil {
		if err := e.limiter.ResetAuth(ctx, limitKey, ip); err != nil {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "auth failure counter not reset",
				append(logAttrsFromContext(ctx),
					slog.String("session_id", s.ID),
					slog.String("error", err.Error()),
				)...,
			)
		}
	}

	e.metricInc(MetricAuthSuccess)
	e.emitSuccess(ctx, s, diagAuthSucceeded, session.CmdAuth, taxonomy.AuthSucceeded, map[string]string{
		"credential_id": identity.CredentialID,
	})
	return accepted(s, taxonomy.AuthSucceeded)
}

// Mail handles MAIL FROM and opens a transaction.
func (e *Engine) Mail(ctx context.Context, id, from string) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdMail, diagSenderRejected, faultReply)
	if !ok {
		return out
	}

	if err := e.machine.SetSender(s, from, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdMail, diagSenderRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdMail, faultReply); !ok {
		return out
	}

	e.metricInc(MetricSenderAccepted)
	return accepted(s, taxonomy.OK)
}

// Rcpt handles RCPT TO.
func (e *Engine) Rcpt(ctx context.Context, id, to string) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdRcpt, diagRcptRejected, faultReply)
	if !ok {
		return out
	}

	if err := e.machine.AddRecipient(s, to, e.now()); err != nil {
		if !errors.Is(err, session.ErrBadSequence) {
			e.metricInc(MetricRecipientRejected)
		}
		return e.machineRejection(ctx, s, session.CmdRcpt, diagRcptRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdRcpt, faultReply); !ok {
		return out
	}

	e.metricInc(MetricRecipientAccepted)
	return accepted(s, taxonomy.OK)
}

// StartData handles DATA. On acceptance the reply is the 354 prompt.
func (e *Engine) StartData(ctx context.Context, id string) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdData, diagDataRejected, faultReply)
	if !ok {
		return out
	}

	if err := e.machine.StartData(s, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdData, diagDataRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdData, faultReply); !ok {
		return out
	}

	return accepted(s, taxonomy.StartInput)
}

// CompleteData reads the message body from r, hands it to the submitter
// and completes the transaction. A failed submission leaves the session
// in Receiving; the transport is expected to follow with Reset.
func (e *Engine) CompleteData(ctx context.Context, id string, r io.Reader) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdDataEnd, diagSubmitRejected, faultReply)
	if !ok {
		return out
	}
	if !session.Allowed(session.CmdDataEnd, s.State) {
		return e.machineRejection(ctx, s, session.CmdDataEnd, diagSubmitRejected, session.ErrBadSequence)
	}

	raw, err := submit.ReadLimited(r, e.config.Submission.MaxMessageBytes)
	if err != nil {
		category := taxonomy.CategorySystemError
		if errors.Is(err, submit.ErrTooLarge) {
			category = taxonomy.CategoryPayloadTooLarge
		}
		return e.submissionRejection(ctx, s, &submit.Error{Category: category, Message: err.Error(), Err: err})
	}

	msg, err := submit.ParseMessage(raw, s.Sender, s.RecipientAddresses())
	if err != nil {
		return e.submissionRejection(ctx, s, err)
	}

	secret, _ := e.vault.get(s.ID)
	subCtx, cancel := context.WithTimeout(ctx, e.config.Submission.Timeout)
	submitStart := time.Now()
	receipt, err := e.submitter.Submit(subCtx, msg, secret)
	e.metricObserve(MetricSubmitLatency, time.Since(submitStart))
	cancel()
	if err != nil {
		return e.submissionRejection(ctx, s, err)
	}

	if err := e.machine.CompleteData(s, receipt.ID, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdDataEnd, diagSubmitRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdDataEnd, faultReply); !ok {
		return out
	}

	reply := taxonomy.Queued(receipt.ID)
	e.metricInc(MetricMessageQueued)
	e.emitSuccess(ctx, s, diagMessageQueued, session.CmdDataEnd, reply, map[string]string{
		"message_ref": receipt.ID,
		"size":        strconv.Itoa(len(raw)),
		"recipients":  strconv.Itoa(len(s.Recipients)),
	})

	out = accepted(s, reply)
	out.MessageRef = receipt.ID
	return out
}

// Reset handles RSET and abandons any open transaction.
func (e *Engine) Reset(ctx context.Context, id string) Outcome {
	s, out, ok := e.begin(ctx, id, session.CmdReset, diagResetRejected, faultReply)
	if !ok {
		return out
	}

	if err := e.machine.Reset(s, e.now()); err != nil {
		return e.machineRejection(ctx, s, session.CmdReset, diagResetRejected, err)
	}
	if out, ok := e.commit(ctx, s, session.CmdReset, faultReply); !ok {
		return out
	}

	e.metricInc(MetricReset)
	return accepted(s, taxonomy.OK)
}

// Disconnect releases the session. It is legal in every state and
// idempotent.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	e.vault.drop(id)
	if err := e.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}

	e.metricInc(MetricSessionClosed)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "smtp session closed",
		append(logAttrsFromContext(ctx), slog.String("session_id", id))...,
	)
	return nil
}

// Session returns a copy of the stored session.
func (e *Engine) Session(ctx context.Context, id string) (*session.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return s, nil
}

// Stats counts live sessions by state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	if e == nil {
		return Stats{}, ErrEngineNotReady
	}

	counts, err := e.sessions.CountByState(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}

	st := Stats{ByState: counts}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}

// Sweep runs one reaper pass immediately.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e == nil || e.reaper == nil {
		return 0, ErrEngineNotReady
	}
	return e.reaper.Sweep(ctx)
}

// StartReaper starts the periodic idle-session sweep. It stops when ctx is
// cancelled or Close is called.
func (e *Engine) StartReaper(ctx context.Context) {
	if e == nil || e.reaper == nil {
		return
	}
	e.reaper.Start(ctx)
}

// StopReaper stops a reaper started with StartReaper and waits for the
// current sweep to finish. It may be started again afterwards.
func (e *Engine) StopReaper() {
	if e == nil || e.reaper == nil {
		return
	}
	e.reaper.Stop()
}

// Close stops the reaper and flushes the diagnostic dispatcher. Later
// Connect and command calls fail with ErrEngineNotReady. The
// session store is left untouched.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.reaper != nil {
			e.reaper.Stop()
		}
		if e.audit != nil {
			e.audit.Close()
			if n := e.audit.Dropped(); n > 0 {
				attrs := []slog.Attr{slog.Uint64("dropped", n), slog.Uint64("sink_failures", e.audit.Failed())}
				for kind, count := range e.audit.DroppedByType() {
					attrs = append(attrs, slog.Uint64("dropped_"+kind, count))
				}
				e.logger.LogAttrs(context.Background(), slog.LevelWarn, "diagnostics lost under backpressure", attrs...)
			}
		}
	})
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// DiagnosticsDropped reports records discarded because the dispatcher
// buffer was full.
func (e *Engine) DiagnosticsDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

/*
====================================
HANDLER PLUMBING
====================================
*/

// begin loads the session for a command. When ok is false, out is the
// rejection to return.
func (e *Engine) begin(ctx context.Context, id string, cmd session.Command, kind string, fault taxonomy.Reply) (s *session.Session, out Outcome, ok bool) {
	if e == nil || e.closed.Load() {
		return nil, Outcome{Reply: fault, Reason: ErrEngineNotReady.Error()}, false
	}

	s, err := e.sessions.Get(ctx, id)
	if err == nil {
		return s, Outcome{}, true
	}

	r := rejection{kind: kind, command: cmd, reply: fault, detail: err.Error()}
	if errors.Is(err, session.ErrNotFound) {
		r.reason = "session-not-found"
	} else {
		r.kind = diagSessionStoreFail
		r.reason = "session-store-unavailable"
	}
	return nil, e.reject(ctx, nil, id, r), false
}

// commit writes s back. The session in the store is unchanged when ok is
// false.
func (e *Engine) commit(ctx context.Context, s *session.Session, cmd session.Command, fault taxonomy.Reply) (Outcome, bool) {
	err := e.sessions.Update(ctx, s)
	if err == nil {
		return Outcome{}, true
	}

	r := rejection{
		kind:    diagSessionStoreFail,
		command: cmd,
		reply:   fault,
		reason:  "session-store-unavailable",
		detail:  err.Error(),
	}
	if errors.Is(err, session.ErrNotFound) {
		// Reaped or disconnected while the command ran.
		r.reason = "session-not-found"
	}
	return e.reject(ctx, nil, s.ID, r), false
}

func (e *Engine) machineRejection(ctx context.Context, s *session.Session, cmd session.Command, kind string, err error) Outcome {
	r := rejection{kind: kind, command: cmd, detail: err.Error()}

	switch {
	case errors.Is(err, session.ErrBadSequence), errors.Is(err, session.ErrNoRecipients):
		r.reply = taxonomy.ForReason(taxonomy.ReasonSequencingViolation)
		r.reason = taxonomy.ReasonSequencingViolation.String()
		e.metricInc(MetricSequencingViolation)
	case errors.Is(err, session.ErrAuthRequired):
		r.reply = taxonomy.AuthRequired
		r.reason = "auth-required"
		e.metricInc(MetricAuthRequired)
	case errors.Is(err, session.ErrTooManyRecipients):
		r.reply = taxonomy.TooManyRecipients
		r.reason = "too-many-recipients"
	case errors.Is(err, session.ErrInvalidAddress):
		r.reply = taxonomy.InvalidAddress
		r.reason = "invalid-address"
	default:
		r.reply = faultReply
		r.reason = "internal"
	}

	return e.reject(ctx, s, s.ID, r)
}

func (e *Engine) authRejection(ctx context.Context, s *session.Session, reason taxonomy.Reason, detail string) Outcome {
	switch taxonomy.Lookup(reason).Family {
	case taxonomy.FamilyCredentials:
		e.metricInc(MetricAuthFailureCredentials)
	case taxonomy.FamilyScope:
		e.metricInc(MetricAuthFailureScope)
	case taxonomy.FamilyTemporary:
		e.metricInc(MetricAuthFailureTemporary)
	}

	return e.reject(ctx, s, s.ID, rejection{
		kind:    diagAuthRejected,
		command: session.CmdAuth,
		reply:   taxonomy.ForReason(reason),
		reason:  reason.String(),
		detail:  detail,
	})
}

func (e *Engine) submissionRejection(ctx context.Context, s *session.Session, err error) Outcome {
	e.metricInc(MetricSubmissionFailure)

	return e.reject(ctx, s, s.ID, rejection{
		kind:    diagSubmitRejected,
		command: session.CmdDataEnd,
		reply:   submit.ReplyFor(err),
		reason:  submit.CategoryOf(err).String(),
		detail:  err.Error(),
	})
}

func accepted(s *session.Session, reply taxonomy.Reply) Outcome {
	return Outcome{Reply: reply, Accepted: true, State: s.State}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func remoteIP(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
