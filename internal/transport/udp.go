// Package transport carries mapper datagrams over UDP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"

	"meshmap/internal/domain"
)

// maxDatagram is larger than any report; the mesh MTU is far smaller
const maxDatagram = 1280

// Datagram is one received payload and its sender
type Datagram struct {
	From    netip.AddrPort
	Payload []byte
}

// Sender unicasts a payload to a mesh node
type Sender interface {
	SendTo(addr domain.Address, payload []byte) error
}

// UDP is the mapper's socket: bound to the server port, sending probes to
// the client port of each node
type UDP struct {
	conn      *net.UDPConn
	probePort uint16
	once      sync.Once
}

// Listen binds the server port
func Listen(listenPort, probePort uint16) (*UDP, error) {
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: int(listenPort)})
	if err != nil {
		return nil, fmt.Errorf("listen udp6 port %d: %w", listenPort, err)
	}
	log.Printf("[transport] listening on %s, probing port %d", conn.LocalAddr(), probePort)
	return &UDP{conn: conn, probePort: probePort}, nil
}

// LocalAddr returns the bound address
func (u *UDP) LocalAddr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// SendTo is fire-and-forget: no acknowledgement, no retry
func (u *UDP) SendTo(addr domain.Address, payload []byte) error {
	dst := netip.AddrPortFrom(addr.Addr(), u.probePort)
	if _, err := u.conn.WriteToUDPAddrPort(payload, dst); err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	return nil
}

// ReadLoop delivers datagrams until the socket closes or ctx ends. It closes
// out when it returns.
func (u *UDP) ReadLoop(ctx context.Context, out chan<- Datagram) {
	defer close(out)
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Printf("[transport] read error: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case out <- Datagram{From: from, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the socket, unblocking ReadLoop
func (u *UDP) Close() error {
	var err error
	u.once.Do(func() {
		err = u.conn.Close()
	})
	return err
}
