package mqttserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
)

// listenerID names the single TCP listener.
const listenerID = "fieldsim-tcp"

// dialTimeout bounds the health check connection attempt and handshake.
const dialTimeout = 2 * time.Second

// connackLen is an MQTT 3.1.1 CONNACK: header, length, flags, return code.
const connackLen = 4

// ErrNotRunning is returned by HealthCheck after Close.
var ErrNotRunning = errors.New("mqttserver: broker not running")

// Server is a running embedded broker.
type Server struct {
	broker  *mochi.Server
	address string

	mu     sync.Mutex
	closed bool
}

// Start creates the broker, binds its TCP listener and begins serving.
//
// Parameters:
//   - cfg: Embedded broker settings (listen address)
//   - logger: Destination for broker logs; nil discards them
//
// Returns:
//   - *Server: Running broker
//   - error: If the listener cannot be bound
func Start(cfg config.EmbeddedBrokerConfig, logger *slog.Logger) (*Server, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("mqttserver: address is required")
	}

	opts := &mochi.Options{}
	if logger != nil {
		opts.Logger = logger.With("component", "mqttserver")
	} else {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	broker := mochi.New(opts)

	if err := broker.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("mqttserver: adding auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      listenerID,
		Address: cfg.Address,
	})
	if err := broker.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("mqttserver: binding %s: %w", cfg.Address, err)
	}

	// Serve starts the listeners in their own goroutines and returns.
	if err := broker.Serve(); err != nil {
		_ = broker.Close()
		return nil, fmt.Errorf("mqttserver: serving: %w", err)
	}

	return &Server{broker: broker, address: cfg.Address}, nil
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.address
}

// HealthCheck completes an MQTT CONNECT/CONNACK exchange with the listener
// and disconnects. The session is registered with the broker before
// HealthCheck returns.
func (s *Server) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrNotRunning
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dialAddress(s.address))
	if err != nil {
		return fmt.Errorf("mqttserver health check: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("mqttserver health check: %w", err)
	}

	if err := handshake(conn); err != nil {
		return fmt.Errorf("mqttserver health check: %w", err)
	}
	return nil
}

// handshake sends a clean-session CONNECT, waits for an accepting CONNACK
// and sends DISCONNECT.
func handshake(conn net.Conn) error {
	var buf bytes.Buffer
	connect := packets.Packet{
		FixedHeader:     packets.FixedHeader{Type: packets.Connect},
		ProtocolVersion: 4,
		Connect: packets.ConnectParams{
			ProtocolName: []byte("MQTT"),
			Clean:        true,
			Keepalive:    uint16(dialTimeout / time.Second),
		},
	}
	if err := connect.ConnectEncode(&buf); err != nil {
		return fmt.Errorf("encoding connect: %w", err)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing connect: %w", err)
	}

	raw := make([]byte, connackLen)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return fmt.Errorf("reading connack: %w", err)
	}
	connack := packets.Packet{ProtocolVersion: 4}
	if err := connack.FixedHeader.Decode(raw[0]); err != nil {
		return fmt.Errorf("decoding connack header: %w", err)
	}
	if connack.FixedHeader.Type != packets.Connack || raw[1] != connackLen-2 {
		return fmt.Errorf("unexpected reply %#x %#x to connect", raw[0], raw[1])
	}
	if err := connack.ConnackDecode(raw[2:]); err != nil {
		return fmt.Errorf("decoding connack: %w", err)
	}
	if connack.ReasonCode != packets.CodeSuccess.Code {
		return fmt.Errorf("connect refused with code %#x", connack.ReasonCode)
	}

	buf.Reset()
	disconnect := packets.Packet{
		FixedHeader:     packets.FixedHeader{Type: packets.Disconnect},
		ProtocolVersion: 4,
	}
	if err := disconnect.DisconnectEncode(&buf); err != nil {
		return fmt.Errorf("encoding disconnect: %w", err)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing disconnect: %w", err)
	}
	return nil
}

// Close stops the broker and disconnects all clients. Safe to call twice.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.broker.Close()
}

// dialAddress turns a listen address like ":1883" into something dialable.
func dialAddress(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
