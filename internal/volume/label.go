// Package volume normalizes volume labels to the character and length
// rules of the filesystem layouts selected for an image.
package volume

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scorch/internal/fsmask"
)

// DefaultLabel is used when sanitization leaves nothing usable.
const DefaultLabel = "DATA"

// Rules describe the label constraints for a filesystem selection.
type Rules struct {
	MaxLen      int
	AllowLower  bool
	AllowSpace  bool
	AllowHyphen bool
}

var upper = cases.Upper(language.Und)

// RulesFor returns the label rules for the given filesystem mask.
// Plain ISO9660 is the strictest; Joliet relaxes casing and separators;
// UDF-only allows the longest labels.
func RulesFor(mask fsmask.Mask) Rules {
	switch {
	case mask == fsmask.UDF:
		return Rules{MaxLen: 32, AllowLower: true, AllowSpace: true, AllowHyphen: true}
	case mask.Has(fsmask.Joliet):
		return Rules{MaxLen: 16, AllowLower: true, AllowSpace: true, AllowHyphen: true}
	default:
		return Rules{MaxLen: 16}
	}
}

// Sanitize normalizes label under the supplied rules, substituting
// underscores for disallowed characters and falling back to DefaultLabel
// when nothing survives.
func Sanitize(label string, rules Rules) string {
	label = strings.TrimSpace(label)
	if !rules.AllowLower {
		label = upper.String(label)
	}
	if rules.AllowSpace {
		label = strings.Join(strings.Fields(label), " ")
	}

	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z' && rules.AllowLower:
			b.WriteRune(r)
		case r == '-' && rules.AllowHyphen:
			b.WriteRune(r)
		case r == ' ' && rules.AllowSpace:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := collapseUnderscores(b.String())
	cleaned = strings.Trim(cleaned, " ")
	if rules.MaxLen > 0 && len(cleaned) > rules.MaxLen {
		cleaned = cleaned[:rules.MaxLen]
	}
	// A label that is nothing but substitution underscores carries no
	// information; treat it as empty.
	if strings.Trim(cleaned, "_ ") == "" {
		if rules.MaxLen > 0 && rules.MaxLen < len(DefaultLabel) {
			return DefaultLabel[:rules.MaxLen]
		}
		return DefaultLabel
	}
	return cleaned
}

// SanitizeFor applies the rules derived from mask.
func SanitizeFor(label string, mask fsmask.Mask) string {
	return Sanitize(label, RulesFor(mask))
}

func collapseUnderscores(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}
