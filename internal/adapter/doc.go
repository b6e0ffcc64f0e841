// Package adapter collects evidence from external network tools.
//
// Collectors run an external tool once and return evidence events. The
// Registry runs them in registration order and hands each batch to a
// SubmitFunc, normally Reconciler.SubmitAll. A collector that fails is
// logged and skipped.
//
// # Collectors
//
// NmapAdapter reads saved nmap XML reports or runs a live scan. Every host
// that is up yields a ServiceScan per open TCP port and one HostScan listing
// all open TCP and UDP endpoints.
//
// SSHProbeAdapter connects to SSH endpoints and records the offered host key
// as the ssh:host-key property of the endpoint. It is a Follower: endpoints
// on port 22 reported open by earlier collectors become probe targets.
package adapter
