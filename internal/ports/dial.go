package ports

import (
	"context"
	"net"
	"strconv"
	"time"
)

// ListenCheck reports whether something accepts TCP connections on host:port.
type ListenCheck func(ctx context.Context, host string, port int) bool

// DialCheck returns a ListenCheck that attempts one TCP connect bounded by
// timeout. A failed connect means the port is available.
func DialCheck(timeout time.Duration) ListenCheck {
	return func(ctx context.Context, host string, port int) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
