// Package recording implements the single audio-recording session.
//
// Invariants:
// - activeSince is set if and only if the session is Recording.
// - total only grows on Recording -> Paused and Recording -> Idle transitions.
// - The capture handle is released exactly once per start/stop cycle.
// - No duration event is emitted after Stop returns, except the final zero.
//
// Usage:
//
//	s := recording.NewSession(recording.Config{...})
//	if err := s.StartWait(ctx, recording.StartOptions{Path: "take-1.aac"}); err != nil {
//		return err
//	}
//	res, err := s.Stop()
package recording
