// Package consent decides whether a proposed tool operation may run.
//
// Invariants:
// - An Engine is scoped to exactly one run; build a new one per run.
// - Global allow-all and deny-all only ever transition from unset to set.
// - Deny-all wins over every other rule once set.
// - Session approvals match the exact "operation:target" key.
//
// Usage:
//
//	engine := consent.NewEngine(policy, consent.NewCLIPrompter(os.Stdin, os.Stdout))
//	decision := engine.Request(ctx, consent.Request{Operation: "file.write", Target: "out.txt"})
//	if consent.Approved(decision) { ... }
package consent
