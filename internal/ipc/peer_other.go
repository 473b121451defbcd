//go:build !linux

package ipc

import "net"

// peerCredentials is unavailable; the socket's 0600 mode is the only gate.
func peerCredentials(net.Conn) (*PeerCredentials, error) {
	return &PeerCredentials{PID: -1, UID: -1, GID: -1}, nil
}

func authorizeSameUser(*PeerCredentials) error { return nil }
