package adapter

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// startSSHServer accepts connections and runs the server side of the key
// exchange with a fresh ed25519 host key
func startSSHServer(t *testing.T) (domain.Address, ssh.PublicKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				// The probe aborts the handshake, so this always fails
				ssh.NewServerConn(conn, config)
			}()
		}
	}()

	ap := netip.MustParseAddrPort(ln.Addr().String())
	endpoint := domain.Endpoint(domain.IPAddress(ap.Addr()), domain.ProtocolTCP, int(ap.Port()))
	return endpoint, signer.PublicKey()
}

func TestSSHProbe(t *testing.T) {
	endpoint, key := startSSHServer(t)

	s := NewSSHProbeAdapter(SSHProbeConfig{Timeout: 5 * time.Second})
	source := evidence.NewSource("sshprobe", "")
	ev, err := s.Probe(t.Context(), endpoint, source)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if ev.Address != endpoint {
		t.Errorf("address = %s, want %s", ev.Address, endpoint)
	}
	if ev.Key != HostKeyProperty {
		t.Errorf("key = %s", ev.Key)
	}
	want := "ssh-ed25519 " + ssh.FingerprintSHA256(key)
	if ev.Value.Value != want {
		t.Errorf("value = %v, want %s", ev.Value.Value, want)
	}
	if !strings.HasPrefix(want, "ssh-ed25519 SHA256:") {
		t.Errorf("unexpected fingerprint format %q", want)
	}
}

func TestSSHProbeCollect(t *testing.T) {
	endpoint, _ := startSSHServer(t)

	// Endpoints on other ports are not probed
	other := domain.MustParse("127.0.0.1/tcp:1")
	s := NewSSHProbeAdapter(SSHProbeConfig{
		Targets: []domain.Address{other, endpoint},
		Port:    endpoint.Port(),
		Timeout: 5 * time.Second,
	})
	if got := len(s.Targets()); got != 1 {
		t.Fatalf("expected 1 target on port %d, got %d", endpoint.Port(), got)
	}

	events, err := s.Collect(t.Context())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got := evidence.Label(events[0]); got != "sshprobe" {
		t.Errorf("label = %q", got)
	}
}

func TestSSHProbeRejectsNonIP(t *testing.T) {
	s := NewSSHProbeAdapter(DefaultSSHProbeConfig())
	_, err := s.Probe(t.Context(), domain.MustParse("host.example.com|name/tcp:22"), nil)
	if !errors.Is(err, domain.ErrMalformedAddress) {
		t.Errorf("error = %v, want ErrMalformedAddress", err)
	}
}

func TestSSHProbeFollow(t *testing.T) {
	s := NewSSHProbeAdapter(DefaultSSHProbeConfig())
	s.Follow([]evidence.Event{
		&evidence.ServiceScan{Endpoint: domain.MustParse("192.168.0.2/tcp:22")},
		&evidence.ServiceScan{Endpoint: domain.MustParse("192.168.0.2/tcp:80")},
		&evidence.HostScan{
			Host: domain.MustParse("192.168.0.2"),
			Endpoints: []domain.Address{
				domain.MustParse("192.168.0.2/tcp:22"),
				domain.MustParse("192.168.0.2/udp:22"),
				domain.MustParse("192.168.0.3/tcp:22"),
			},
		},
	})

	targets := s.Targets()
	want := []domain.Address{
		domain.MustParse("192.168.0.2/tcp:22"),
		domain.MustParse("192.168.0.3/tcp:22"),
	}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("target %d = %s, want %s", i, targets[i], want[i])
		}
	}
}
