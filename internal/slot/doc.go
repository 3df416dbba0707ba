// Package slot encodes logical contract fields into fixed-width storage words.
//
// Every requestable field lives at a 32-byte Key and holds a 32-byte Value.
// The Key is the same on the root and the child layer; the Value is the
// field's content packed into a word:
//   - Addresses are right-aligned (12 leading zero bytes).
//   - Unsigned integers are big-endian and right-aligned.
//   - Booleans are 0 or 1 in the last byte.
//
// Decoding a word outside a codec's domain fails with ErrMalformedSlotValue.
//
// A contract's requestable slots are declared in CUE and compiled into a
// Layout (see layout.go).
package slot
