package portengine

import (
	"net"
	"strconv"
	"time"
)

// dialTimeout bounds how long a single port probe may block; a port that neither accepts nor
// actively refuses within this window is treated as free, since a hung listener is not this
// engine's problem to diagnose.
const dialTimeout = 200 * time.Millisecond

// IsPortInUse reports whether a TCP connect to localhost:port succeeds: a successful connect
// means something is already listening on the port. This is the semantic inverse of a
// net.Listen-based probe, which treats a successful *bind* as "free" — the two checks are
// opposites, so this one is written as a dial rather than adapted from a bind-based scanner.
func IsPortInUse(port int) bool {
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
