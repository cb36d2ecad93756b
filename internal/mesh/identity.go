package mesh

import (
	"errors"
	"fmt"
	"net"

	"meshmap/internal/domain"
)

// ErrNoGlobalAddress is returned when no global-scope address is configured
var ErrNoGlobalAddress = errors.New("no global address")

// StaticIdentity is a configured sink address
type StaticIdentity struct {
	Address domain.Address
}

func (s StaticIdentity) GlobalAddress() (domain.Address, error) {
	if s.Address.IsZero() {
		return domain.Address{}, ErrNoGlobalAddress
	}
	return s.Address, nil
}

// InterfaceIdentity picks the first global unicast IPv6 address on a network
// interface, the way the sink's stack picks its preferred global address
type InterfaceIdentity struct {
	Name string
}

func (i InterfaceIdentity) GlobalAddress() (domain.Address, error) {
	iface, err := net.InterfaceByName(i.Name)
	if err != nil {
		return domain.Address{}, fmt.Errorf("interface %s: %w", i.Name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return domain.Address{}, fmt.Errorf("interface %s addresses: %w", i.Name, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.To4() != nil {
			continue
		}
		if ipnet.IP.IsGlobalUnicast() {
			return domain.AddressFromBytes(ipnet.IP.To16())
		}
	}
	return domain.Address{}, fmt.Errorf("interface %s: %w", i.Name, ErrNoGlobalAddress)
}
