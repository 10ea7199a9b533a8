package model

import (
	"fmt"
	"strings"
)

// ImpactLevel is an ordered risk tier. It is an enumeration rather than a
// score so that comparisons stay exact.
type ImpactLevel int

const (
	ImpactLow ImpactLevel = iota + 1
	ImpactMedium
	ImpactHigh
	ImpactCritical
)

var impactNames = map[ImpactLevel]string{
	ImpactLow:      "low",
	ImpactMedium:   "medium",
	ImpactHigh:     "high",
	ImpactCritical: "critical",
}

// ImpactLevels lists every legal level in ascending order.
var ImpactLevels = []ImpactLevel{ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical}

// ParseImpactLevel parses a level name (case-insensitive).
func ParseImpactLevel(value string) (ImpactLevel, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for level, name := range impactNames {
		if name == normalized {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unsupported impact level: %q", value)
}

// IsValid reports whether l is one of the declared levels.
func (l ImpactLevel) IsValid() bool {
	_, ok := impactNames[l]
	return ok
}

// AtLeast reports whether l is greater than or equal to other.
func (l ImpactLevel) AtLeast(other ImpactLevel) bool {
	return l >= other
}

// Max returns the higher of the two levels.
func (l ImpactLevel) Max(other ImpactLevel) ImpactLevel {
	if other > l {
		return other
	}
	return l
}

// Ptr returns a pointer to a copy of l.
func (l ImpactLevel) Ptr() *ImpactLevel {
	return &l
}

func (l ImpactLevel) String() string {
	if name, ok := impactNames[l]; ok {
		return name
	}
	return fmt.Sprintf("ImpactLevel(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler
func (l ImpactLevel) MarshalText() ([]byte, error) {
	name, ok := impactNames[l]
	if !ok {
		return nil, fmt.Errorf("unsupported impact level: %d", int(l))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *ImpactLevel) UnmarshalText(data []byte) error {
	level, err := ParseImpactLevel(string(data))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
