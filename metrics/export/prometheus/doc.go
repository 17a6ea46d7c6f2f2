// Package prometheus renders goSession engine metrics in Prometheus text
// exposition format.
//
// Counters are named gosession_*_total, the establish latency histogram is
// gosession_establish_latency_seconds, and gosession_sessions_active reports
// the registry size. Nothing is registered globally; callers mount Handler.
package prometheus
