package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// tcpTransport connects to a network fiscal printer, typically on port 9100.
type tcpTransport struct {
	address     string
	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewTCP creates a transport that dials the printer over TCP. Address should
// include the port, e.g. "192.168.1.50:9100".
func NewTCP(address string, dialTimeout time.Duration) Transport {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &tcpTransport{address: address, dialTimeout: dialTimeout}
}

func (t *tcpTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return fmt.Errorf("transport: connection to %s already open", t.address)
	}
	conn, err := net.DialTimeout("tcp", t.address, t.dialTimeout)
	if err != nil {
		return fmt.Errorf("transport: failed to connect to %s: %w", t.address, err)
	}
	t.conn = conn
	return nil
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, fmt.Errorf("transport: connection to %s not open", t.address)
	}
	return conn.Read(p)
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, fmt.Errorf("transport: connection to %s not open", t.address)
	}
	return conn.Write(p)
}

func (t *tcpTransport) SetReadDeadline(deadline time.Time) error {
	conn := t.current()
	if conn == nil {
		return fmt.Errorf("transport: connection to %s not open", t.address)
	}
	return conn.SetReadDeadline(deadline)
}

func (t *tcpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *tcpTransport) IsOpen() bool {
	return t.current() != nil
}

func (t *tcpTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}
