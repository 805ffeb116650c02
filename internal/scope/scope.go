// Package scope models permissions as bits of an arbitrary-precision integer.
//
// A Mask is a value type: every operation returns a new Mask and never mutates
// its receiver, so masks can be shared freely between goroutines.
package scope

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

var (
	ErrEmptyScope   = errors.New("scope cannot be empty")
	ErrInvalidScope = errors.New("invalid scope")
)

// Mask is a set of permissions. The zero value is the empty set.
type Mask struct {
	v *big.Int
}

// Registered permissions.
var (
	IdentityRead    = Bit(0)
	DeveloperPortal = Bit(1)
	RegistryUpload  = Bit(2)
	RegistryPublish = Bit(3)
	ProfileWrite    = Bit(4)
)

var names = map[string]Mask{
	"identity:read":    IdentityRead,
	"developer:portal": DeveloperPortal,
	"registry:upload":  RegistryUpload,
	"registry:publish": RegistryPublish,
	"profile:write":    ProfileWrite,
}

// Bit returns the mask with only bit n set.
func Bit(n uint) Mask {
	return Mask{v: new(big.Int).SetBit(new(big.Int), int(n), 1)}
}

// FromBig copies x into a Mask. Negative values are rejected.
func FromBig(x *big.Int) (Mask, error) {
	if x == nil {
		return Mask{}, nil
	}
	if x.Sign() < 0 {
		return Mask{}, fmt.Errorf("%w: negative mask", ErrInvalidScope)
	}
	return Mask{v: new(big.Int).Set(x)}, nil
}

// FromUint64 builds a mask from a machine word.
func FromUint64(x uint64) Mask {
	return Mask{v: new(big.Int).SetUint64(x)}
}

// ParseDecimal parses the base-10 string representation produced by String.
func ParseDecimal(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Mask{}, ErrEmptyScope
	}
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Mask{}, fmt.Errorf("%w: %q is not a decimal mask", ErrInvalidScope, s)
	}
	return FromBig(x)
}

// Parse accepts either a decimal mask ("5") or space separated permission
// names ("identity:read registry:upload").
func Parse(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Mask{}, ErrEmptyScope
	}
	if isDecimal(s) {
		return ParseDecimal(s)
	}

	var out Mask
	for _, field := range strings.Fields(s) {
		m, ok := names[field]
		if !ok {
			return Mask{}, fmt.Errorf("%w: unknown permission %q", ErrInvalidScope, field)
		}
		out = Union(out, m)
	}
	return out, nil
}

func isDecimal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m Mask) int() *big.Int {
	if m.v == nil {
		return new(big.Int)
	}
	return m.v
}

// Int returns a copy of the underlying integer.
func (m Mask) Int() *big.Int {
	return new(big.Int).Set(m.int())
}

// String returns the decimal representation.
func (m Mask) String() string {
	return m.int().String()
}

// IsZero reports whether no permission is set.
func (m Mask) IsZero() bool {
	return m.int().Sign() == 0
}

// Equal reports whether both masks grant exactly the same permissions.
func (m Mask) Equal(o Mask) bool {
	return m.int().Cmp(o.int()) == 0
}

// Contains reports whether every permission in required is also in m.
func (m Mask) Contains(required Mask) bool {
	return Contains(m, required)
}

// HasAny reports whether m shares at least one permission with any candidate.
func (m Mask) HasAny(candidates ...Mask) bool {
	return HasAny(m, candidates...)
}

// Names lists the registered permission names set in m, sorted. Bits without
// a registered name are omitted.
func (m Mask) Names() []string {
	var out []string
	for name, bit := range names {
		if m.Contains(bit) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MarshalText encodes the mask as its decimal string so JSON keeps full
// precision beyond 64 bits.
func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the same forms as Parse.
func (m *Mask) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Contains reports whether mask & required == required.
func Contains(mask, required Mask) bool {
	and := new(big.Int).And(mask.int(), required.int())
	return and.Cmp(required.int()) == 0
}

// HasAny reports whether mask intersects any of the candidates.
func HasAny(mask Mask, candidates ...Mask) bool {
	for _, c := range candidates {
		if new(big.Int).And(mask.int(), c.int()).Sign() != 0 {
			return true
		}
	}
	return false
}

// Union returns the bitwise OR of all masks.
func Union(masks ...Mask) Mask {
	out := new(big.Int)
	for _, m := range masks {
		out.Or(out, m.int())
	}
	return Mask{v: out}
}
