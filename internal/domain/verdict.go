package domain

import (
	"fmt"
	"strings"
)

// Status classifies an entity as declared or observed
type Status string

const (
	StatusPlaceholder Status = "placeholder" // Created speculatively, not yet classified
	StatusExpected    Status = "expected"    // Declared in the model
	StatusUnexpected  Status = "unexpected"  // Observed but not declared
	StatusExternal    Status = "external"    // Observed, attributable to a tolerated external peer
)

// Verdict is the conformance outcome attached to an entity or property
type Verdict string

const (
	VerdictUndefined Verdict = ""
	VerdictIncon     Verdict = "incon" // Seen, no pass/fail criterion applies
	VerdictPass      Verdict = "pass"
	VerdictFail      Verdict = "fail"
	VerdictExternal  Verdict = "external"
	VerdictIgnore    Verdict = "ignore"
)

// verdictRank orders verdicts for Resolve
var verdictRank = map[Verdict]int{
	VerdictUndefined: 0,
	VerdictIgnore:    1,
	VerdictIncon:     2,
	VerdictPass:      3,
	VerdictExternal:  4,
	VerdictFail:      5,
}

// ParseVerdict converts a verdict name, case-insensitive
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := verdictRank[v]; !ok {
		return VerdictUndefined, fmt.Errorf("unknown verdict %q", s)
	}
	return v, nil
}

// Resolve folds two verdicts into one. It is commutative and associative and
// Undefined is the identity: Fail > External > Pass > Incon > Ignore > Undefined.
//
// Ignore ranks just above Undefined here. Its suppressing effect is applied
// when an entity is aggregated: an entity carrying an Ignore property reports
// Ignore for its whole subtree.
func Resolve(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// ResolveAll folds any number of verdicts
func ResolveAll(verdicts ...Verdict) Verdict {
	v := VerdictUndefined
	for _, x := range verdicts {
		v = Resolve(v, x)
	}
	return v
}

// ExternalActivity is the per-host tolerance for unexpected peers
type ExternalActivity int

const (
	ActivityBanned    ExternalActivity = iota // No unexpected peers
	ActivityPassive                           // May be contacted, must not reply
	ActivityOpen                              // May be contacted and reply
	ActivityUnlimited                         // Any external traffic
)

var activityNames = []string{"banned", "passive", "open", "unlimited"}

func (a ExternalActivity) String() string {
	if a < ActivityBanned || a > ActivityUnlimited {
		return fmt.Sprintf("activity(%d)", int(a))
	}
	return activityNames[a]
}

// ParseExternalActivity converts an activity name, empty means banned
func ParseExternalActivity(s string) (ExternalActivity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ActivityBanned, nil
	}
	for i, n := range activityNames {
		if n == s {
			return ExternalActivity(i), nil
		}
	}
	return ActivityBanned, fmt.Errorf("unknown external activity %q", s)
}

// HostType describes the role of a host
type HostType string

const (
	HostTypeGeneric        HostType = "generic"
	HostTypeDevice         HostType = "device"
	HostTypeBackend        HostType = "backend"
	HostTypeMobile         HostType = "mobile"
	HostTypeBrowser        HostType = "browser"
	HostTypeAdministrative HostType = "administrative" // Network infrastructure, broadcast sinks
	HostTypeRemote         HostType = "remote"
)

// ConnectionType classifies services and connections
type ConnectionType string

const (
	ConnTypeUnknown        ConnectionType = ""
	ConnTypePlaintext      ConnectionType = "plaintext"
	ConnTypeEncrypted      ConnectionType = "encrypted"
	ConnTypeAdministrative ConnectionType = "administrative"
	ConnTypeLogical        ConnectionType = "logical"
)
