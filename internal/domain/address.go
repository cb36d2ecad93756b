package domain

import (
	"fmt"
	"net/netip"
)

// AddrLen is the width of a mesh address in bytes
const AddrLen = 16

// DefaultScopePrefix is the network-scope marker written over the leading
// 16 bits of an address before lookup
const DefaultScopePrefix uint16 = 0xaaaa

// Address is a fixed-width mesh network address
type Address [AddrLen]byte

// AddressFromBytes copies the first AddrLen bytes of b
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) < AddrLen {
		return a, fmt.Errorf("address needs %d bytes, got %d", AddrLen, len(b))
	}
	copy(a[:], b[:AddrLen])
	return a, nil
}

// ParseAddress parses the textual IPv6 form of an address
func ParseAddress(s string) (Address, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	if !ip.Is6() || ip.Is4In6() {
		return Address{}, fmt.Errorf("parse address %q: not an IPv6 address", s)
	}
	return Address(ip.As16()), nil
}

// MustParseAddress is ParseAddress for constants and tests
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Normalize returns a copy of the address with its leading 16 bits replaced
// by the scope prefix, folding link-local and global forms together
func (a Address) Normalize(prefix uint16) Address {
	a[0] = byte(prefix >> 8)
	a[1] = byte(prefix)
	return a
}

// IsZero reports whether every byte is zero
func (a Address) IsZero() bool {
	return a == Address{}
}

// Addr converts to a netip.Addr
func (a Address) Addr() netip.Addr {
	return netip.AddrFrom16(a)
}

func (a Address) String() string {
	return a.Addr().String()
}

// MarshalText renders the textual IPv6 form (JSON and YAML use it)
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the textual IPv6 form
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
