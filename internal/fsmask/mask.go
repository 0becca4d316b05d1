// Package fsmask models the filesystem-layout bitset selected for an
// optical disc image.
package fsmask

import (
	"fmt"
	"strings"
)

// Mask selects which filesystem layouts the output image encodes.
type Mask uint8

const (
	ISO9660 Mask = 1 << iota
	Joliet
	UDF
)

// Default is the mask used when a request does not specify one.
const Default = ISO9660 | Joliet

// Has reports whether all bits of other are set in m.
func (m Mask) Has(other Mask) bool {
	return m&other == other
}

// HasAny reports whether any bit of other is set in m.
func (m Mask) HasAny(other Mask) bool {
	return m&other != 0
}

// String renders the mask in the canonical config syntax, e.g. "iso9660+joliet".
func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	if m.Has(ISO9660) {
		parts = append(parts, "iso9660")
	}
	if m.Has(Joliet) {
		parts = append(parts, "joliet")
	}
	if m.Has(UDF) {
		parts = append(parts, "udf")
	}
	return strings.Join(parts, "+")
}

// Parse converts the config syntax back into a Mask. Components are
// joined with '+' and matched case-insensitively.
func Parse(value string) (Mask, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return Default, nil
	}
	var mask Mask
	for _, part := range strings.Split(trimmed, "+") {
		switch strings.TrimSpace(part) {
		case "iso9660":
			mask |= ISO9660
		case "joliet":
			mask |= Joliet
		case "udf":
			mask |= UDF
		default:
			return 0, fmt.Errorf("filesystem mask: unknown component %q", part)
		}
	}
	return mask, nil
}
