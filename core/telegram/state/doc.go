// Package state provides an in-memory conversation state store for
// Telegram bots. It is intentionally domain-agnostic so it can be reused
// across bots; the owning orchestrator decides what the tags mean.
package state
