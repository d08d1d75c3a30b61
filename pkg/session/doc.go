// Package session holds the state one coordinator owns for the life of the
// process: the conversation, the provider mode, the pending attachment and
// the tool server registry.
//
// A Session is passed explicitly to every component that needs it. It is not
// a global and is safe for use from the single dispatch lane plus the
// gateway, which takes and restores the attachment.
package session
