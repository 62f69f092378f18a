// Package enums holds the string-backed value sets persisted in the
// database and exchanged on the wire.
package enums

import (
	"fmt"
	"slices"
)

func parseMember[T ~string](kind, value string, members []T) (T, error) {
	if v := T(value); slices.Contains(members, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
