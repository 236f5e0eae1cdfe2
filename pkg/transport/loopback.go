package transport

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Loopback is an in-process transport for environments without printer
// hardware. Each Open creates a fresh net.Pipe and hands the device end to
// the supplied handler, so reconnect cycles behave like a real link.
type Loopback struct {
	device func(conn net.Conn)

	mu   sync.Mutex
	conn net.Conn
}

// NewLoopback creates a loopback transport. The device function is run on its
// own goroutine for every established connection and owns the device end of
// the pipe; it should return when the connection closes.
func NewLoopback(device func(conn net.Conn)) *Loopback {
	return &Loopback{device: device}
}

func (l *Loopback) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return fmt.Errorf("transport: loopback already open")
	}
	driverEnd, deviceEnd := net.Pipe()
	l.conn = driverEnd
	go l.device(deviceEnd)
	return nil
}

func (l *Loopback) Read(p []byte) (int, error) {
	conn := l.current()
	if conn == nil {
		return 0, fmt.Errorf("transport: loopback not open")
	}
	return conn.Read(p)
}

func (l *Loopback) Write(p []byte) (int, error) {
	conn := l.current()
	if conn == nil {
		return 0, fmt.Errorf("transport: loopback not open")
	}
	return conn.Write(p)
}

func (l *Loopback) SetReadDeadline(deadline time.Time) error {
	conn := l.current()
	if conn == nil {
		return fmt.Errorf("transport: loopback not open")
	}
	return conn.SetReadDeadline(deadline)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *Loopback) IsOpen() bool {
	return l.current() != nil
}

func (l *Loopback) current() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}
