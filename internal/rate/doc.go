// Package rate throttles peers that repeatedly fail to establish a session.
//
// Counters use fixed windows: INCR plus EXPIRE on the first hit. Keys are
// "<prefix>:throttle:s:<subject>" for certificate subjects and
// "<prefix>:throttle:r:<id>" for peer-assigned identifiers.
package rate
