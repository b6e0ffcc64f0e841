package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// errHostKeyCaptured aborts the handshake once the server key is known
var errHostKeyCaptured = errors.New("host key captured")

// hostKey runs the SSH key exchange against addr and returns the server key
func (s *SSHProbeAdapter) hostKey(ctx context.Context, addr string) (ssh.PublicKey, error) {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	var key ssh.PublicKey
	config := &ssh.ClientConfig{
		User: "netconform",
		HostKeyCallback: func(_ string, _ net.Addr, k ssh.PublicKey) error {
			key = k
			return errHostKeyCaptured
		},
		Timeout: s.timeout,
	}

	_, _, _, err = ssh.NewClientConn(conn, addr, config)
	if key != nil {
		return key, nil
	}
	if err == nil {
		return nil, fmt.Errorf("server at %s offered no host key", addr)
	}
	return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
}
