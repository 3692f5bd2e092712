package permissions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCapability indicates a stored or submitted capability name outside the closed set.
var ErrUnknownCapability = errors.New("permissions: unknown capability")

// Capability names a single boolean override granted to an agent.
type Capability string

// Capability vocabulary. Extend by adding a new name, never by reusing an existing one.
const (
	CanCreateCategories Capability = "canCreateCategories"
	CanEditCategories   Capability = "canEditCategories"
	CanDeleteCategories Capability = "canDeleteCategories"
	CanAssignAgents     Capability = "canAssignAgents"
	CanResetPasswords   Capability = "canResetPasswords"
	CanInviteUsers      Capability = "canInviteUsers"
	CanDeleteUsers      Capability = "canDeleteUsers"
	CanViewAllTickets   Capability = "canViewAllTickets"
	CanEditAllTickets   Capability = "canEditAllTickets"
)

// All lists every capability in declaration order.
func All() []Capability {
	return []Capability{
		CanCreateCategories,
		CanEditCategories,
		CanDeleteCategories,
		CanAssignAgents,
		CanResetPasswords,
		CanInviteUsers,
		CanDeleteUsers,
		CanViewAllTickets,
		CanEditAllTickets,
	}
}

// Valid reports whether c belongs to the closed vocabulary.
func (c Capability) Valid() bool {
	for _, known := range All() {
		if c == known {
			return true
		}
	}
	return false
}

// Matrix is the per-agent override set. The zero value grants nothing.
type Matrix struct {
	CanCreateCategories bool `json:"canCreateCategories"`
	CanEditCategories   bool `json:"canEditCategories"`
	CanDeleteCategories bool `json:"canDeleteCategories"`
	CanAssignAgents     bool `json:"canAssignAgents"`
	CanResetPasswords   bool `json:"canResetPasswords"`
	CanInviteUsers      bool `json:"canInviteUsers"`
	CanDeleteUsers      bool `json:"canDeleteUsers"`
	CanViewAllTickets   bool `json:"canViewAllTickets"`
	CanEditAllTickets   bool `json:"canEditAllTickets"`
}

// Has reports whether the capability is granted. Unknown names are never granted.
func (m Matrix) Has(c Capability) bool {
	if ptr := m.field(c); ptr != nil {
		return *ptr
	}
	return false
}

// With returns a copy of m with the capability set to value.
func (m Matrix) With(c Capability, value bool) Matrix {
	if ptr := m.field(c); ptr != nil {
		*ptr = value
	}
	return m
}

// Granted returns the granted capabilities in declaration order.
func (m Matrix) Granted() []Capability {
	granted := make([]Capability, 0, len(All()))
	for _, c := range All() {
		if m.Has(c) {
			granted = append(granted, c)
		}
	}
	return granted
}

// Diff lists capabilities whose value differs between m and other.
func (m Matrix) Diff(other Matrix) []Capability {
	var changed []Capability
	for _, c := range All() {
		if m.Has(c) != other.Has(c) {
			changed = append(changed, c)
		}
	}
	return changed
}

// field returns the struct field backing c, or nil for an unknown name.
func (m *Matrix) field(c Capability) *bool {
	switch c {
	case CanCreateCategories:
		return &m.CanCreateCategories
	case CanEditCategories:
		return &m.CanEditCategories
	case CanDeleteCategories:
		return &m.CanDeleteCategories
	case CanAssignAgents:
		return &m.CanAssignAgents
	case CanResetPasswords:
		return &m.CanResetPasswords
	case CanInviteUsers:
		return &m.CanInviteUsers
	case CanDeleteUsers:
		return &m.CanDeleteUsers
	case CanViewAllTickets:
		return &m.CanViewAllTickets
	case CanEditAllTickets:
		return &m.CanEditAllTickets
	default:
		return nil
	}
}

// Decode parses a stored or submitted matrix. Null or empty input yields the zero matrix,
// unknown keys are rejected so a misspelt capability never silently reads as false.
func Decode(data []byte) (Matrix, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Matrix{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Matrix{}, fmt.Errorf("permissions: decode: %w", err)
	}
	var m Matrix
	for key, value := range raw {
		c := Capability(key)
		if !c.Valid() {
			return Matrix{}, fmt.Errorf("%w: %q", ErrUnknownCapability, key)
		}
		var granted *bool
		if err := json.Unmarshal(value, &granted); err != nil {
			return Matrix{}, fmt.Errorf("permissions: capability %s: %w", key, err)
		}
		if granted != nil {
			m = m.With(c, *granted)
		}
	}
	return m, nil
}

// FromMap builds a matrix from name/value pairs, rejecting unknown names.
func FromMap(values map[string]bool) (Matrix, error) {
	var m Matrix
	for key, value := range values {
		c := Capability(key)
		if !c.Valid() {
			return Matrix{}, fmt.Errorf("%w: %q", ErrUnknownCapability, key)
		}
		m = m.With(c, value)
	}
	return m, nil
}

// Encode marshals the matrix for JSONB storage.
func (m Matrix) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalJSON applies the strict Decode rules to request bodies and stored rows alike.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
