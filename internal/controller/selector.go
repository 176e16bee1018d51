package controller

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/fieldsim/internal/infrastructure/config"
)

// Selector decides which actuators receive a rule's commands.
type Selector interface {
	Select(a Actuator) bool
	String() string
}

// NewSelector builds the selector kind named by config.
func NewSelector(kind string, c config.RuleConfig) (Selector, error) {
	switch kind {
	case "", config.SelectorCapability:
		if normaliseTag(c.Capability) == "" {
			return nil, fmt.Errorf("rule %q: capability selector needs a capability", c.Name)
		}
		return CapabilitySelector{Capability: c.Capability}, nil
	case config.SelectorIDSubstring:
		if c.IDSubstring == "" {
			return nil, fmt.Errorf("rule %q: id_substring selector needs a substring", c.Name)
		}
		return IDSubstringSelector{Substring: c.IDSubstring}, nil
	default:
		return nil, fmt.Errorf("unknown selector %q", kind)
	}
}

// CapabilitySelector accepts actuators advertising a capability tag.
// Tags compare case-insensitively after trimming.
type CapabilitySelector struct {
	Capability string
}

// Select implements Selector.
func (s CapabilitySelector) Select(a Actuator) bool {
	want := normaliseTag(s.Capability)
	return slices.ContainsFunc(a.Capabilities, func(c string) bool {
		return normaliseTag(c) == want
	})
}

func (s CapabilitySelector) String() string {
	return "capability=" + normaliseTag(s.Capability)
}

// IDSubstringSelector accepts actuators whose ID contains Substring.
// This matches on the full commands container path, case-sensitively.
type IDSubstringSelector struct {
	Substring string
}

// Select implements Selector.
func (s IDSubstringSelector) Select(a Actuator) bool {
	return strings.Contains(a.ID, s.Substring)
}

func (s IDSubstringSelector) String() string {
	return "id_substring=" + s.Substring
}

func normaliseTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
