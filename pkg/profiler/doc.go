// Package profiler keeps the in-memory registry of profiler sessions.
//
// Invariants:
// - Session ids are 128-bit random tokens and are never handed out twice in a process lifetime.
// - Sessions are immutable; the only mutations are Create and Terminate.
// - All registry operations are safe for concurrent use.
//
// Usage:
//
//	reg := profiler.NewRegistry()
//	sess := reg.Create()
//	got, _ := reg.Describe(sess.ID)
//	_ = reg.Terminate(got.ID)
package profiler
