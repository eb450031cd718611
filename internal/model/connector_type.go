package model

import "strings"

// ConnectorType enumerates the mating relations a connector can express.
type ConnectorType string

const (
	Coincident ConnectorType = "coincident"
	Concentric ConnectorType = "concentric"
	Tangent    ConnectorType = "tangent"
	Fixed      ConnectorType = "fixed"
)

// ConnectorTypes lists the accepted connector types in display order.
var ConnectorTypes = []ConnectorType{Coincident, Concentric, Tangent, Fixed}

// Valid reports whether t is one of the enumerated connector types.
func (t ConnectorType) Valid() bool {
	for _, v := range ConnectorTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseConnectorType accepts a type name case-insensitively.
// The second result is false when the name is not an enumerated type.
func ParseConnectorType(s string) (ConnectorType, bool) {
	t := ConnectorType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}
