package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/google/uuid"

	"netconform/internal/domain"
	"netconform/internal/evidence"
)

// NmapAdapter turns nmap results into scan evidence. It reads saved XML
// reports and, when targets are set, runs a live scan.
type NmapAdapter struct {
	files             []string
	targets           []string
	label             string
	timeout           time.Duration
	portRange         string
	serviceDetection  bool
	udp               bool
	skipHostDiscovery bool
}

// NewNmapAdapter creates an nmap adapter
func NewNmapAdapter(opts ...NmapOption) *NmapAdapter {
	adapter := &NmapAdapter{
		label:     "nmap",
		timeout:   10 * time.Minute,
		portRange: "22,53,67,80,123,443,1883,5353,8080,8443,8883",
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Name returns the adapter identifier
func (n *NmapAdapter) Name() string {
	return "nmap"
}

// Targets returns the live scan targets
func (n *NmapAdapter) Targets() []string {
	return n.targets
}

// Collect reads the configured reports, then scans the configured targets
func (n *NmapAdapter) Collect(ctx context.Context) ([]evidence.Event, error) {
	var events []evidence.Event
	for _, path := range n.files {
		evs, err := n.ReadFile(path)
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}

	if len(n.targets) > 0 {
		evs, err := n.Scan(ctx)
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// ReadFile converts a saved nmap XML report
func (n *NmapAdapter) ReadFile(path string) ([]evidence.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nmap report: %w", err)
	}
	result := &nmap.Run{}
	if err := nmap.Parse(data, result); err != nil {
		return nil, fmt.Errorf("failed to parse nmap report %s: %w", path, err)
	}
	slog.Debug("Nmap: read report", "path", path, "hosts", len(result.Hosts))
	return RunEvents(result, evidence.NewSource(path, n.label))
}

// Scan runs nmap against the configured targets
func (n *NmapAdapter) Scan(ctx context.Context) ([]evidence.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(n.targets...),
		nmap.WithPorts(n.portRange),
	}
	if n.serviceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}
	if n.udp {
		opts = append(opts, nmap.WithUDPScan())
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	slog.Info("Nmap: scanning", "targets", n.targets, "ports", n.portRange)
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		slog.Warn("Nmap: scan warnings", "warnings", *warnings)
	}

	name := "nmap-scan-" + uuid.NewString()
	return RunEvents(result, evidence.NewSource(name, n.label))
}

// RunEvents converts an nmap run. Every up host yields a ServiceScan per
// open TCP port, followed by a HostScan listing all open TCP and UDP
// endpoints.
func RunEvents(result *nmap.Run, source *evidence.Source) ([]evidence.Event, error) {
	if result == nil {
		return nil, fmt.Errorf("nil scan result")
	}

	ts := time.Time(result.Start)
	var events []evidence.Event
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		ip, ok := hostAddress(host)
		if !ok {
			slog.Debug("Nmap: host without IP address skipped", "addresses", len(host.Addresses))
			continue
		}
		ev := evidence.Evidence{Source: source, Timestamp: ts, Reference: ip.String()}

		scan := &evidence.HostScan{Evidence: ev, Host: ip}
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			proto, ok := portProtocol(port.Protocol)
			if !ok {
				continue
			}
			endpoint := domain.Endpoint(ip, proto, int(port.ID))
			scan.Endpoints = append(scan.Endpoints, endpoint)
			if proto == domain.ProtocolTCP {
				events = append(events, &evidence.ServiceScan{Evidence: ev, Endpoint: endpoint})
			}
		}
		events = append(events, scan)
		slog.Debug("Nmap: host scanned", "host", ip, "open", len(scan.Endpoints))
	}
	return events, nil
}

// hostAddress picks the first IPv4 address of a host, falling back to IPv6
func hostAddress(host nmap.Host) (domain.Address, bool) {
	var fallback string
	for _, addr := range host.Addresses {
		switch addr.AddrType {
		case "ipv4":
			if a, err := domain.ParseIP(addr.Addr); err == nil {
				return a, true
			}
		case "ipv6":
			if fallback == "" {
				fallback = addr.Addr
			}
		}
	}
	if fallback == "" {
		return domain.Address{}, false
	}
	a, err := domain.ParseIP(fallback)
	return a, err == nil
}

func portProtocol(s string) (domain.Protocol, bool) {
	switch strings.ToLower(s) {
	case "tcp":
		return domain.ProtocolTCP, true
	case "udp":
		return domain.ProtocolUDP, true
	}
	return domain.ProtocolAny, false
}
