package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// HostKeyProperty is set on every probed SSH endpoint
var HostKeyProperty = domain.NewPropertyKey("ssh", "host-key")

// SSHProbeAdapter records the host key offered by SSH servers. It stops
// after the key exchange and never authenticates.
type SSHProbeAdapter struct {
	label   string
	timeout time.Duration
	port    int
	mu      sync.Mutex
	targets []domain.Address
	known   map[domain.Address]bool
}

// SSHProbeConfig holds configuration for the SSH probe adapter
type SSHProbeConfig struct {
	// Targets are TCP endpoints to probe
	Targets []domain.Address
	// Label of the produced events
	Label string
	// Timeout for each key exchange
	Timeout time.Duration
	// Port that earlier scan events must report open to become a target
	Port int
}

// DefaultSSHProbeConfig returns sensible defaults
func DefaultSSHProbeConfig() SSHProbeConfig {
	return SSHProbeConfig{
		Label:   "sshprobe",
		Timeout: 10 * time.Second,
		Port:    22,
	}
}

// NewSSHProbeAdapter creates a new SSH probe adapter
func NewSSHProbeAdapter(config SSHProbeConfig) *SSHProbeAdapter {
	def := DefaultSSHProbeConfig()
	if config.Label == "" {
		config.Label = def.Label
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Port == 0 {
		config.Port = def.Port
	}

	s := &SSHProbeAdapter{
		label:   config.Label,
		timeout: config.Timeout,
		port:    config.Port,
		known:   make(map[domain.Address]bool),
	}
	for _, t := range config.Targets {
		s.addTarget(t)
	}
	return s
}

// Name returns the adapter identifier
func (s *SSHProbeAdapter) Name() string {
	return "sshprobe"
}

// Follow adds every open SSH endpoint reported by earlier scans
func (s *SSHProbeAdapter) Follow(events []evidence.Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case *evidence.ServiceScan:
			s.addTarget(e.Endpoint)
		case *evidence.HostScan:
			for _, a := range e.Endpoints {
				s.addTarget(a)
			}
		}
	}
}

func (s *SSHProbeAdapter) addTarget(a domain.Address) {
	if !a.IsEndpoint() || a.Protocol() != domain.ProtocolTCP || a.Port() != s.port {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[a] {
		return
	}
	s.known[a] = true
	s.targets = append(s.targets, a)
}

// Targets returns the endpoints that Collect will probe
func (s *SSHProbeAdapter) Targets() []domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Address(nil), s.targets...)
}

// Collect probes every target. Unreachable targets are logged and skipped.
func (s *SSHProbeAdapter) Collect(ctx context.Context) ([]evidence.Event, error) {
	source := evidence.NewSource(s.Name(), s.label)
	var events []evidence.Event
	for _, target := range s.Targets() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		ev, err := s.Probe(ctx, target, source)
		if err != nil {
			slog.Warn("SSH probe: failed", "endpoint", target, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Probe fetches the host key of one endpoint
func (s *SSHProbeAdapter) Probe(ctx context.Context, endpoint domain.Address, source *evidence.Source) (*evidence.PropertyAddressUpdate, error) {
	if !endpoint.IsEndpoint() || !endpoint.Host().IsIP() {
		return nil, fmt.Errorf("%w: ssh probe needs an IP endpoint, got %s", domain.ErrMalformedAddress, endpoint)
	}
	addr := net.JoinHostPort(endpoint.Host().IP().String(), strconv.Itoa(endpoint.Port()))

	key, err := s.hostKey(ctx, addr)
	if err != nil {
		return nil, err
	}
	value := HostKeyValue(key)
	slog.Debug("SSH probe: host key", "endpoint", endpoint, "key", value)

	return &evidence.PropertyAddressUpdate{
		Evidence: evidence.Evidence{
			Source:    source,
			Timestamp: time.Now().UTC(),
			Reference: addr,
		},
		Address: endpoint,
		Key:     HostKeyProperty,
		Value:   domain.PropertyValue{Value: value},
	}, nil
}

// HostKeyValue formats a key as its type and SHA256 fingerprint
func HostKeyValue(key ssh.PublicKey) string {
	return key.Type() + " " + ssh.FingerprintSHA256(key)
}
