// Package publish drives the publish/subscribe loop: it periodically
// publishes the local membership registry's snapshot, keeps one subscription
// per known peer's publish address alive (adding and dropping subscriptions
// as membership changes), and merges every received snapshot back into the
// registry.
package publish
