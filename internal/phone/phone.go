// Package phone canonicalizes channel-supplied phone strings into the
// stable keys that session and dedup state is indexed by.
package phone

import "strings"

// Normalizer canonicalizes raw phone strings. The zero value is not usable;
// construct with NewNormalizer.
type Normalizer struct {
	countryCode string
}

// NewNormalizer returns a Normalizer that prepends countryCode when a number
// arrives without one. An empty countryCode defaults to Singapore ("65").
func NewNormalizer(countryCode string) *Normalizer {
	cc := strings.TrimSpace(countryCode)
	if cc == "" {
		cc = "65"
	}
	return &Normalizer{countryCode: cc}
}

// Normalize strips whitespace and a leading "+" or "00" prefix, then ensures
// the configured country code is present. Idempotent: normalizing an already
// normalized key returns it unchanged.
func (n *Normalizer) Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '(', ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	key := b.String()
	key = strings.TrimPrefix(key, "+")
	if strings.HasPrefix(key, "00") {
		key = key[2:]
	}
	if key == "" {
		return ""
	}
	if !strings.HasPrefix(key, n.countryCode) {
		key = n.countryCode + key
	}
	return key
}
