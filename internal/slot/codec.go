package slot

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Codec converts between a logical field type and its storage word.
// Decode(Encode(x)) == x for every x in the domain.
type Codec[T any] interface {
	Encode(T) Value
	Decode(Value) (T, error)
}

// AddressCodec packs an Address right-aligned in the word.
type AddressCodec struct{}

// Encode places a in the low 20 bytes of the word.
func (AddressCodec) Encode(a Address) Value {
	return Value(common.BytesToHash(a[:]))
}

// Decode requires the 12 high bytes to be zero.
func (AddressCodec) Decode(v Value) (Address, error) {
	if significant(v) > AddressSize {
		return Address{}, fmt.Errorf("address word %s has non-zero high bytes: %w", v, ErrMalformedSlotValue)
	}
	return Address(common.BytesToAddress(v[:])), nil
}

// UintCodec packs a uint64 big-endian, right-aligned.
type UintCodec struct{}

// Encode places n in the low 8 bytes of the word.
func (UintCodec) Encode(n uint64) Value {
	return Value(common.BigToHash(new(big.Int).SetUint64(n)))
}

// Decode requires the 24 high bytes to be zero.
func (UintCodec) Decode(v Value) (uint64, error) {
	n := common.Hash(v).Big()
	if !n.IsUint64() {
		return 0, fmt.Errorf("uint word %s overflows uint64: %w", v, ErrMalformedSlotValue)
	}
	return n.Uint64(), nil
}

// BoolCodec stores false as 0 and true as 1.
type BoolCodec struct{}

// Encode returns the 0 or 1 word.
func (BoolCodec) Encode(b bool) Value {
	var v Value
	if b {
		v[WordSize-1] = 1
	}
	return v
}

// Decode rejects anything other than 0 or 1.
func (BoolCodec) Decode(v Value) (bool, error) {
	if significant(v) > 1 || v[WordSize-1] > 1 {
		return false, fmt.Errorf("bool word %s: %w", v, ErrMalformedSlotValue)
	}
	return v[WordSize-1] == 1, nil
}

// EncodeAddress is shorthand for AddressCodec{}.Encode.
func EncodeAddress(a Address) Value { return AddressCodec{}.Encode(a) }

// DecodeAddress is shorthand for AddressCodec{}.Decode.
func DecodeAddress(v Value) (Address, error) { return AddressCodec{}.Decode(v) }

// significant returns the word's length without leading zero bytes.
func significant(v Value) int {
	return len(common.TrimLeftZeroes(v[:]))
}
