// Package conversation owns the ordered turn history of one orca session.
//
// Invariants:
// - Turns are append-only; Clear is the only removal.
// - A full snapshot is written after every model-authored turn.
// - Content is stored as valid UTF-8, so Restore(Snapshot(x)) reproduces x exactly.
//
// Usage:
//
//	store, _ := conversation.Open("/tmp/orca/conversation.json", zerolog.Nop())
//	_ = store.Append(ctx, conversation.Turn{Role: conversation.RoleUser, Content: "hello"})
//	msgs := store.ContextWindow()
//	_ = msgs
package conversation
