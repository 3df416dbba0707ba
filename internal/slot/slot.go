package slot

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// WordSize is the width of a Key or Value in bytes.
	WordSize = common.HashLength

	// AddressSize is the width of an Address in bytes.
	AddressSize = common.AddressLength
)

// ErrMalformedSlotValue is returned when bytes fall outside a codec's domain
// or hex input cannot be parsed into a word.
var ErrMalformedSlotValue = errors.New("malformed slot value")

// Key identifies a slot. It is identical on every layer.
type Key common.Hash

// Value is the encoded content of a slot.
type Value common.Hash

// Address is a 20-byte account identifier.
type Address common.Address

// ZeroAddress is never an authorized holder of a slot.
var ZeroAddress Address

// KeyAt returns the key of the slot declared at index, left-padded into a word.
func KeyAt(index uint64) Key {
	return Key(common.BigToHash(new(big.Int).SetUint64(index)))
}

// String returns the 0x-prefixed hex form of the key.
func (k Key) String() string { return common.Hash(k).Hex() }

// String returns the 0x-prefixed hex form of the value.
func (v Value) String() string { return common.Hash(v).Hex() }

// IsZero reports whether the value is the all-zero word (an unset slot).
func (v Value) IsZero() bool { return common.Hash(v) == common.Hash{} }

// String returns the lower-case 0x-prefixed hex form of the address.
// Checksum casing is left to common.Address.Hex.
func (a Address) String() string { return hexutil.Encode(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Value) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Value) UnmarshalText(text []byte) error {
	parsed, err := ParseValue(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseAddress parses a hex address. The input must be exactly 20 bytes,
// with or without the 0x prefix.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("address %q: want %d hex bytes: %w", s, AddressSize, ErrMalformedSlotValue)
	}
	return Address(common.HexToAddress(s)), nil
}

// ParseKey parses a hex key. Short input is left-padded with zeros.
func ParseKey(s string) (Key, error) {
	b, err := parseWord(s)
	if err != nil {
		return Key{}, fmt.Errorf("key: %w", err)
	}
	return Key(common.BytesToHash(b)), nil
}

// ParseValue parses a hex value. Short input is left-padded with zeros.
func ParseValue(s string) (Value, error) {
	b, err := parseWord(s)
	if err != nil {
		return Value{}, fmt.Errorf("value: %w", err)
	}
	return Value(common.BytesToHash(b)), nil
}

// parseWord decodes 0x-prefixed or bare hex, with an optional odd leading
// nibble, and left-pads it to WordSize.
func parseWord(s string) ([]byte, error) {
	digits := strings.TrimSpace(s)
	if len(digits) >= 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, errors.Join(err, ErrMalformedSlotValue))
	}
	if len(b) > WordSize {
		return nil, fmt.Errorf("%q is %d bytes, max %d: %w", s, len(b), WordSize, ErrMalformedSlotValue)
	}
	return common.LeftPadBytes(b, WordSize), nil
}
