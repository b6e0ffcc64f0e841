package inspector

import "netconform/internal/domain"

// Listener receives model change notifications. Callbacks run on the
// reconciliation thread and must not call back into the inspector.
type Listener interface {
	HostChanged(h *domain.Host)
	ConnectionChanged(c *domain.Connection)
}

// ChangeKind tells which listener callback a change maps to
type ChangeKind uint8

const (
	ChangeHost ChangeKind = iota + 1
	ChangeConnection
)

func (k ChangeKind) String() string {
	if k == ChangeConnection {
		return "connection_changed"
	}
	return "host_changed"
}

// Change names one changed entity
type Change struct {
	Kind   ChangeKind
	Entity domain.ID
}

// ChangeSet collects the distinct changes of one call in first-seen order
type ChangeSet struct {
	changes []Change
	seen    map[Change]bool
}

func (cs *ChangeSet) add(c Change) {
	if cs.seen == nil {
		cs.seen = make(map[Change]bool)
	}
	if cs.seen[c] {
		return
	}
	cs.seen[c] = true
	cs.changes = append(cs.changes, c)
}

// Changes returns the changes in order
func (cs *ChangeSet) Changes() []Change {
	return cs.changes
}

// Len returns the number of distinct changes
func (cs *ChangeSet) Len() int {
	return len(cs.changes)
}

// Empty reports a call that changed nothing
func (cs *ChangeSet) Empty() bool {
	return len(cs.changes) == 0
}

// Result is the outcome of one event
type Result struct {
	// Entity is the primary entity affected, NoID when the event was dropped
	Entity  domain.ID
	Reply   bool
	Changes ChangeSet
}
