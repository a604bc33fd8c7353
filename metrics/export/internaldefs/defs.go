package internaldefs

import (
	"strconv"
	"strings"
	"time"

	goSubmit "github.com/MrEthical07/goSubmit"
)

// CounterDef binds an engine counter to an exported series. Defs that
// share a Name form one metric family told apart by Label=LabelValue.
type CounterDef struct {
	ID         goSubmit.MetricID
	Name       string
	Help       string
	Label      string
	LabelValue string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goSubmit.MetricID
	Name string
	Help string
}

const authFailuresHelp = "AUTH rejections by client-visible family."

// CounterDefs lists every exported counter in render order. Members of a
// family are adjacent.
var CounterDefs = []CounterDef{
	{ID: goSubmit.MetricSessionOpened, Name: "gosubmit_session_opened_total", Help: "Sessions registered on connect."},
	{ID: goSubmit.MetricSessionClosed, Name: "gosubmit_session_closed_total", Help: "Sessions released on disconnect."},
	{ID: goSubmit.MetricSessionReaped, Name: "gosubmit_session_reaped_total", Help: "Idle sessions removed by the reaper."},
	{ID: goSubmit.MetricGreet, Name: "gosubmit_greet_total", Help: "Accepted EHLO/HELO commands."},
	{ID: goSubmit.MetricAuthSuccess, Name: "gosubmit_auth_success_total", Help: "Successful AUTH exchanges."},
	{ID: goSubmit.MetricAuthFailureCredentials, Name: "gosubmit_auth_failures_total", Help: authFailuresHelp, Label: "family", LabelValue: "credentials"},
	{ID: goSubmit.MetricAuthFailureScope, Name: "gosubmit_auth_failures_total", Help: authFailuresHelp, Label: "family", LabelValue: "scope"},
	{ID: goSubmit.MetricAuthFailureTemporary, Name: "gosubmit_auth_failures_total", Help: authFailuresHelp, Label: "family", LabelValue: "temporary"},
	{ID: goSubmit.MetricAuthRateLimited, Name: "gosubmit_auth_rate_limited_total", Help: "AUTH attempts refused by the failure limiter."},
	{ID: goSubmit.MetricAuthRequired, Name: "gosubmit_auth_required_total", Help: "Transaction commands refused before AUTH."},
	{ID: goSubmit.MetricSequencingViolation, Name: "gosubmit_sequencing_violation_total", Help: "Commands issued outside their legal states."},
	{ID: goSubmit.MetricSenderAccepted, Name: "gosubmit_sender_accepted_total", Help: "Accepted MAIL FROM commands."},
	{ID: goSubmit.MetricRecipientAccepted, Name: "gosubmit_recipient_accepted_total", Help: "Accepted RCPT TO commands."},
	{ID: goSubmit.MetricRecipientRejected, Name: "gosubmit_recipient_rejected_total", Help: "RCPT TO rejected for limit or syntax."},
	{ID: goSubmit.MetricMessageQueued, Name: "gosubmit_message_queued_total", Help: "Messages handed to the submitter."},
	{ID: goSubmit.MetricSubmissionFailure, Name: "gosubmit_submission_failure_total", Help: "Messages refused at end of DATA."},
	{ID: goSubmit.MetricReset, Name: "gosubmit_reset_total", Help: "Accepted RSET commands."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSubmit.MetricAuthLatency, Name: "gosubmit_auth_latency_seconds", Help: "AUTH pipeline latency."},
	{ID: goSubmit.MetricSubmitLatency, Name: "gosubmit_submit_latency_seconds", Help: "Downstream submitter latency at end of DATA."},
}

// BucketBounds are the le values of the histogram buckets in seconds,
// ending with +Inf.
var BucketBounds = bucketBounds()

// BucketCount is the number of buckets in every engine histogram.
var BucketCount = len(BucketBounds)

const (
	DiagnosticsDroppedName = "gosubmit_diagnostics_dropped_total"
	DiagnosticsDroppedHelp = "Diagnostic records dropped due to dispatcher backpressure."
)

func bucketBounds() []string {
	bounds := goSubmit.LatencyBucketBounds()
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, Seconds(b))
	}
	return append(out, "+Inf")
}

// Seconds formats d the way Prometheus expects durations: shortest decimal
// seconds.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Cumulative converts per-bucket counts into running totals, padded or cut
// to BucketCount.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

// SeriesName renders name with its optional single label.
func (d CounterDef) SeriesName() string {
	if d.Label == "" {
		return d.Name
	}
	var b strings.Builder
	b.Grow(len(d.Name) + len(d.Label) + len(d.LabelValue) + 5)
	b.WriteString(d.Name)
	b.WriteByte('{')
	b.WriteString(d.Label)
	b.WriteString(`="`)
	b.WriteString(d.LabelValue)
	b.WriteString(`"}`)
	return b.String()
}
