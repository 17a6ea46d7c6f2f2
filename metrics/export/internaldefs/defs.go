package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionEstablished, Name: "gosession_established_total", Help: "Sessions established and registered."},
	{ID: goSession.MetricSessionEstablishFailed, Name: "gosession_establish_failed_total", Help: "Establish calls that failed."},
	{ID: goSession.MetricSessionClosed, Name: "gosession_closed_total", Help: "Sessions closed explicitly."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_expired_total", Help: "Sessions removed after idling past the timeout."},
	{ID: goSession.MetricSequenceAccepted, Name: "gosession_sequence_accepted_total", Help: "Messages accepted by the sequence gate."},
	{ID: goSession.MetricSequenceRejected, Name: "gosession_sequence_rejected_total", Help: "Messages rejected by the sequence gate."},
	{ID: goSession.MetricInvalidSessionRejected, Name: "gosession_invalid_session_rejected_total", Help: "Operations refused on an invalid session."},
	{ID: goSession.MetricIdentifierCollision, Name: "gosession_identifier_collision_total", Help: "Identifiers rejected as already registered."},
	{ID: goSession.MetricIdentifierClaimed, Name: "gosession_identifier_claimed_total", Help: "Remote identifiers owned by another node."},
	{ID: goSession.MetricClaimFailure, Name: "gosession_claim_failure_total", Help: "Claim store errors."},
	{ID: goSession.MetricClaimLost, Name: "gosession_claim_lost_total", Help: "Sessions closed after losing their identifier claim."},
	{ID: goSession.MetricMaterialReleaseFailure, Name: "gosession_material_release_failure_total", Help: "Key or certificate Close errors."},
	{ID: goSession.MetricEstablishThrottled, Name: "gosession_establish_throttled_total", Help: "Establish calls refused after repeated failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricEstablishLatency, Name: "gosession_establish_latency_seconds", Help: "Establish latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's microsecond buckets.
var HistogramBounds = []string{
	"0.00001",
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_00001",
	"0_00005",
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero filling missing
// buckets and dropping extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
