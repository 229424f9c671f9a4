// Package tracking turns per-frame detections with unstable ephemeral ids
// into a single committed target with a stable identity.
//
// Manager runs a small state machine over three fallback tiers: identifier
// match, spatial (motion-predicted) match, and appearance
// re-identification after loss. It is driven from one goroutine; see
// internal/pipeline.Runtime.
package tracking
