package device

import (
	"fmt"
	"strings"
)

// Kind is a client surface category a user can be present on.
type Kind string

const (
	Desktop Kind = "desktop"
	Web     Kind = "web"
	Mobile  Kind = "mobile"
)

// kinds is the canonical ordering used when building and rendering sets.
var kinds = []Kind{Desktop, Web, Mobile}

// Snapshot holds per-client presence indicators captured from the gateway.
// An indicator is true when that client reports any non-offline status.
type Snapshot struct {
	Desktop bool
	Web     bool
	Mobile  bool
}

// Set is an ordered set of device kinds. A nil or empty Set means no client
// was active; "could not determine" is signalled separately by Classify.
type Set []Kind

// Classify maps a presence snapshot to the set of active device kinds.
// ok is false when the snapshot is unavailable, which callers must treat
// differently from an empty set.
func Classify(snapshot *Snapshot) (Set, bool) {
	if snapshot == nil {
		return nil, false
	}

	set := Set{}
	if snapshot.Desktop {
		set = append(set, Desktop)
	}
	if snapshot.Web {
		set = append(set, Web)
	}
	if snapshot.Mobile {
		set = append(set, Mobile)
	}

	return set, true
}

// Has reports whether k is in the set.
func (s Set) Has(k Kind) bool {
	for _, v := range s {
		if v == k {
			return true
		}
	}
	return false
}

// String renders the set the way it is persisted, e.g. "desktop, web".
func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, k := range s {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ", ")
}

// Clone returns a copy that does not share the backing array.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// ParseSet parses the persisted form produced by String.
func ParseSet(s string) (Set, error) {
	set := Set{}
	if strings.TrimSpace(s) == "" {
		return set, nil
	}

	for _, part := range strings.Split(s, ",") {
		k := Kind(strings.ToLower(strings.TrimSpace(part)))
		if !valid(k) {
			return nil, fmt.Errorf("unknown device kind: %q", part)
		}
		if !set.Has(k) {
			set = append(set, k)
		}
	}

	return set.sorted(), nil
}

func valid(k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

// sorted returns the set in canonical desktop, web, mobile order.
func (s Set) sorted() Set {
	out := make(Set, 0, len(s))
	for _, k := range kinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
