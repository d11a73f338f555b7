// Package memory stores what an agent run learns, in three kinds.
//
// Invariants:
// - Semantic and episodic records are append-only; episodic records are pruned
//   oldest-first once the configured maximum is exceeded.
// - Working memory is a bounded LRU keyed by caller-chosen keys.
// - Semantic recall uses sqlite-vec cosine distance when an embedding
//   provider is configured and falls back to keyword overlap otherwise.
//
// Usage:
//
//	mgr, _ := memory.NewManager(memory.Config{DBPath: "/data/memory.db"})
//	defer mgr.Close()
//	_, _ = mgr.Remember(ctx, "Paris is the capital of France", memory.Semantic, nil)
//	items, _ := mgr.Recall(ctx, "capital of France", memory.Semantic, 5)
//	_ = items
package memory
