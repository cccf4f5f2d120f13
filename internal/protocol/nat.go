package protocol

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Nat is an unsigned arbitrary-precision integer as carried on the wire.
// It marshals to a decimal string so that no precision is lost in JSON,
// and accepts decimal strings, 0x-prefixed hex strings, or raw numbers
// on input. Negative values are rejected.
type Nat struct {
	Int *big.Int
}

// NewNat creates a Nat from a uint64
func NewNat(v uint64) Nat {
	return Nat{Int: new(big.Int).SetUint64(v)}
}

// NatFromBig creates a Nat holding a copy of v. v must be non-negative.
func NatFromBig(v *big.Int) Nat {
	if v == nil {
		return Nat{}
	}
	return Nat{Int: new(big.Int).Set(v)}
}

// NatFromUint256 creates a Nat from a shard-local balance value
func NatFromUint256(v *uint256.Int) Nat {
	if v == nil {
		return Nat{}
	}
	return Nat{Int: v.ToBig()}
}

// ToBig returns the underlying value, never nil
func (n Nat) ToBig() *big.Int {
	if n.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.Int)
}

// ToUint256 converts to a uint256 for balance arithmetic.
// Returns an error if the value does not fit in 256 bits.
func (n Nat) ToUint256() (*uint256.Int, error) {
	if n.Int == nil {
		return uint256.NewInt(0), nil
	}
	v, overflow := uint256.FromBig(n.Int)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits", n.Int.String())
	}
	return v, nil
}

// IsZero reports whether the value is zero (or unset)
func (n Nat) IsZero() bool {
	return n.Int == nil || n.Int.Sign() == 0
}

// Cmp compares n and other, returning -1, 0 or 1
func (n Nat) Cmp(other Nat) int {
	return n.ToBig().Cmp(other.ToBig())
}

func (n Nat) String() string {
	if n.Int == nil {
		return "0"
	}
	return n.Int.String()
}

// MarshalJSON encodes the value as a decimal string
func (n Nat) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string, hex string, or raw number
func (n *Nat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		n.Int = nil
		return nil
	}
	s = strings.Trim(s, `"`)

	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = v.SetString(s[2:], 16)
	} else {
		_, ok = v.SetString(s, 10)
	}
	if !ok {
		return fmt.Errorf("invalid integer value: %q", s)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("negative value not allowed: %q", s)
	}
	n.Int = v
	return nil
}
