package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NmapOption is a functional option for configuring NmapAdapter
type NmapOption func(*NmapAdapter)

// WithReports adds saved nmap XML reports to read
func WithReports(paths ...string) NmapOption {
	return func(n *NmapAdapter) {
		n.files = append(n.files, paths...)
	}
}

// WithTargets sets the live scan targets, CIDR ranges or single hosts
func WithTargets(targets ...string) NmapOption {
	return func(n *NmapAdapter) {
		n.targets = targets
	}
}

// WithLabel sets the source label of the produced events
func WithLabel(label string) NmapOption {
	return func(n *NmapAdapter) {
		if label != "" {
			n.label = label
		}
	}
}

// WithTimeout sets the timeout for a live scan
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapAdapter) {
		n.timeout = d
	}
}

// WithPortRange sets the ports to scan. Invalid ranges are ignored.
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080"
func WithPortRange(ports string) NmapOption {
	return func(n *NmapAdapter) {
		if validated, err := parsePorts(ports); err == nil {
			n.portRange = validated
		}
	}
}

// WithServiceDetection enables or disables service version detection (-sV)
func WithServiceDetection(enabled bool) NmapOption {
	return func(n *NmapAdapter) {
		n.serviceDetection = enabled
	}
}

// WithUDP adds a UDP scan (-sU). Requires root.
func WithUDP(enabled bool) NmapOption {
	return func(n *NmapAdapter) {
		n.udp = enabled
	}
}

// WithSkipHostDiscovery treats all hosts as online (-Pn)
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapAdapter) {
		n.skipHostDiscovery = skip
	}
}

// ValidatePorts checks a port list the way WithPortRange does
func ValidatePorts(ports string) error {
	_, err := parsePorts(ports)
	return err
}

// parsePorts validates a port range string in nmap format
func parsePorts(portRange string) (string, error) {
	for _, part := range strings.Split(portRange, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := parsePort(lo)
			if err != nil {
				return "", err
			}
			end, err := parsePort(hi)
			if err != nil {
				return "", err
			}
			if end < start {
				return "", fmt.Errorf("invalid port range: %s", part)
			}
			continue
		}
		if _, err := parsePort(part); err != nil {
			return "", err
		}
	}
	return portRange, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %s", s)
	}
	return port, nil
}
