// Package agent runs the bounded autonomous loop behind /task and
// `orca task`.
//
// Invariants:
// - Each task starts with exactly one user turn describing the goal and the
//   commands the model may use.
// - The step counter is monotone and never exceeds MaxSteps.
// - Only allow-listed commands run; everything else the model says stays in
//   the conversation unexecuted.
// - The whole task runs on the dispatcher's main lane, so nested command
//   dispatches execute inline.
//
// Usage:
//
//	loop, _ := agent.New(agent.Config{Dispatcher: dispatcher, MaxSteps: 10})
//	result, err := loop.Run(ctx, "list the files in this directory")
package agent
