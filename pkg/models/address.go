package models

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account: an airline, a passenger, an oracle, the
// owner, or a logic component allowed to call into the data layer.
type Address string

// ParseAddress normalises a hex account handle to lower case with a 0x
// prefix and no leading zeros, so 0x00A2 and 0xa2 name the same account.
// The all-zero address is rejected.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidArgument)
	}
	if _, err := hex.DecodeString(padEven(s)); err != nil {
		return "", fmt.Errorf("%w: address %q is not hex", ErrInvalidArgument, s)
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "", fmt.Errorf("%w: zero address", ErrInvalidArgument)
	}
	return Address("0x" + s), nil
}

// MustAddress is ParseAddress for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return string(a)
}

func (a Address) IsZero() bool {
	return a == ""
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}
