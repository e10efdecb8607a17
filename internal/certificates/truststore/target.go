package truststore

import (
	"fmt"
	"strings"
)

// Target names one trust store kind.
type Target string

const (
	TargetSystem Target = "system"
	TargetNSS    Target = "nss"
	TargetJava   Target = "java"
)

// AllTargets lists every target in dispatch order.
func AllTargets() []Target {
	return []Target{TargetSystem, TargetNSS, TargetJava}
}

// Required reports whether a failure of this target fails the whole operation.
func (target Target) Required() bool {
	return target == TargetSystem
}

func (target Target) String() string {
	return string(target)
}

func (target Target) order() int {
	switch target {
	case TargetSystem:
		return 0
	case TargetNSS:
		return 1
	case TargetJava:
		return 2
	default:
		return 3
	}
}

// ParseTargets parses a comma separated target list. Names are case-insensitive, blank
// entries are ignored, and duplicates collapse. An empty list enables every target.
// The result is in dispatch order.
func ParseTargets(rawValue string) ([]Target, error) {
	selected := map[Target]bool{}
	for _, rawName := range strings.Split(rawValue, ",") {
		name := Target(strings.ToLower(strings.TrimSpace(rawName)))
		if name == "" {
			continue
		}
		if name.order() > TargetJava.order() {
			return nil, fmt.Errorf("unknown trust store target %q (expected one of system, nss, java)", strings.TrimSpace(rawName))
		}
		selected[name] = true
	}
	if len(selected) == 0 {
		return AllTargets(), nil
	}

	targets := make([]Target, 0, len(selected))
	for _, target := range AllTargets() {
		if selected[target] {
			targets = append(targets, target)
		}
	}
	return targets, nil
}
