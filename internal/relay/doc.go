// Package relay moves committed origin requests to the opposite layer.
//
// A Relay reads one layer's append-only log and calls the other layer's
// public SubmitDestination entry point. It shares no state with either layer
// beyond those two surfaces. Delivery is at-least-once: a request already
// applied on the destination is rejected there with DUPLICATE_REQUEST and
// the relay moves on.
//
// LogVerifier stands in for the trie-proof collaborator: it accepts a
// destination request only when the origin layer's log holds an origin event
// with the same subject (direction, id, key, value).
package relay
