package request

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// Domain prefixes for request hashing.
// Version suffix enables future preimage changes.
const (
	DomainRequest = "reqsync/request/v1"
	DomainSubject = "reqsync/subject/v1"
)

// Hash is a Keccak-256 digest.
type Hash [32]byte

func (h Hash) String() string { return hexutil.Encode(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 0x-prefixed 32-byte hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hexutil.Decode(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hash is the full identity of a logged request, requestor included.
//
// Preimage: domain || 0x00 || is_exit(1) || id(8, big-endian) || key(32) || value(32) || requestor(20)
// The null separator prevents domain/data boundary ambiguity.
func (r Request) Hash() Hash {
	k := sha3.NewLegacyKeccak256()
	writeBody(k, DomainRequest, r)
	k.Write(r.Requestor[:])

	var h Hash
	k.Sum(h[:0])
	return h
}

// Subject is what an origin proof must cover: (direction, id, key, value).
// The requestor is excluded because the origin holder and the destination
// caller are different parties.
func (r Request) Subject() Hash {
	k := sha3.NewLegacyKeccak256()
	writeBody(k, DomainSubject, r)

	var h Hash
	k.Sum(h[:0])
	return h
}

func writeBody(w io.Writer, domain string, r Request) {
	w.Write([]byte(domain))
	w.Write([]byte{0x00})
	if r.Direction == Exit {
		w.Write([]byte{1})
	} else {
		w.Write([]byte{0})
	}
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], r.ID)
	w.Write(id[:])
	w.Write(r.Key[:])
	w.Write(r.Value[:])
}
