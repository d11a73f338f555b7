// Package agent runs the bounded plan/act loop.
//
// Invariants:
// - A run plans at most maxSteps actions; history only grows.
// - Step indices in history are contiguous from 0.
// - Consent state belongs to one run and is rebuilt on every Run call.
// - Tool calls route through toolexecutor only.
// - Errors and panics inside an iteration become error records; the loop continues.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Planner: planner,
//		Catalog: catalog,
//		Memory:  mgr,
//	})
//	result := runner.Run(ctx, "Calculate 3 * 4", 10, agent.RunOptions{})
//	fmt.Println(result.Status, result.Result)
package agent
