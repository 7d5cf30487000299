package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLinkFailure wraps every failed vehicle delivery attempt.
var ErrLinkFailure = errors.New("vehicle link failure")

// VehicleLink delivers one raw command to the vehicle. Implementations
// must honour ctx's deadline for both connect and write.
type VehicleLink interface {
	Send(ctx context.Context, payload []byte) error
	String() string
}

// NewVehicleLink picks the uplink from configuration: websocket when wsURL
// is set, UDP when only udpAddr is set, nil when forwarding is disabled.
func NewVehicleLink(wsURL, udpAddr string, timeout time.Duration) VehicleLink {
	switch {
	case wsURL != "":
		return NewWSLink(wsURL, timeout)
	case udpAddr != "":
		return NewUDPLink(udpAddr)
	default:
		return nil
	}
}

// WSLink opens one websocket per command and sends it as a text frame.
type WSLink struct {
	url    string
	dialer *websocket.Dialer
}

func NewWSLink(url string, handshakeTimeout time.Duration) *WSLink {
	return &WSLink{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (l *WSLink) String() string { return "ws " + l.url }

func (l *WSLink) Send(ctx context.Context, payload []byte) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrLinkFailure, l.url, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: write: %v", ErrLinkFailure, err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

// UDPLink sends each command as a single datagram.
type UDPLink struct {
	addr string
}

func NewUDPLink(addr string) *UDPLink {
	return &UDPLink{addr: addr}
}

func (l *UDPLink) String() string { return "udp " + l.addr }

func (l *UDPLink) Send(ctx context.Context, payload []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", l.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrLinkFailure, l.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: write: %v", ErrLinkFailure, err)
	}
	return nil
}
