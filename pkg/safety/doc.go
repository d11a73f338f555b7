// Package safety validates planner actions and sanitizes everything the
// runtime records or returns.
//
// Invariants:
// - ValidateAction never mutates a valid action.
// - Sanitize is idempotent: Sanitize(Sanitize(x)) equals Sanitize(x).
// - Masked secrets keep their original length.
//
// Usage:
//
//	v := safety.New(safety.DefaultPolicy())
//	act, err := v.ValidateAction(act)
//	clean := v.Sanitize(result)
package safety
