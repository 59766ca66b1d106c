package hub

import "time"

// SetKeepalive shortens the keepalive timing and returns a restore func.
func SetKeepalive(ping, pong, write time.Duration) func() {
	oldPing, oldPong, oldWrite := pingPeriod, pongWait, writeWait
	pingPeriod, pongWait, writeWait = ping, pong, write
	return func() { pingPeriod, pongWait, writeWait = oldPing, oldPong, oldWrite }
}
