package slug

import (
	"crypto/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// MaxLength is the upper bound enforced by the tenants.slug column.
	MaxLength = 50
	// MinLength matches the shortest slug the format accepts.
	MinLength = 3
	// maxNameLength bounds the human-readable portion so the timestamp and
	// any collision suffix always fit within MaxLength.
	maxNameLength = 20

	separator    = "_"
	suffixLength = 4
)

// format is the canonical slug shape shared with the tenants table check
// constraint and the backend provisioning API.
var format = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

// Valid reports whether s matches the canonical slug format.
func Valid(s string) bool {
	return format.MatchString(s)
}

// Derive produces a slug candidate from a display name: the first
// whitespace-delimited token, lowercased, stripped to alphanumerics,
// truncated to 20 runes, with a base-36 millisecond timestamp appended.
// The timestamp makes slugs from unrelated names unique without
// coordination; collisions within the same millisecond are handled by
// WithRandomSuffix.
func Derive(name string) (string, error) {
	base := sanitize(name)
	if base == "" {
		return "", ErrNameTooShort
	}

	s := base + separator + timestamp()
	if !Valid(s) {
		return "", ErrInvalidSlug
	}
	return s, nil
}

// WithRandomSuffix appends a short random suffix to a derived slug for
// collision retries. When the result would exceed MaxLength the name
// portion is truncated; the timestamp and suffix carry the uniqueness
// guarantee and are never cut.
func WithRandomSuffix(s string) (string, error) {
	suffix := randomSuffix(suffixLength)

	name, rest, found := strings.Cut(s, separator)
	if !found {
		rest = ""
	}

	tail := separator + suffix
	if rest != "" {
		tail = separator + rest + separator + suffix
	}

	if overflow := len(name) + len(tail) - MaxLength; overflow > 0 {
		if overflow >= len(name) {
			return "", ErrInvalidSlug
		}
		name = name[:len(name)-overflow]
	}

	out := name + tail
	if !Valid(out) {
		return "", ErrInvalidSlug
	}
	return out, nil
}

// sanitize reduces a display name to its first token, lowercased and
// stripped of everything outside [a-z0-9], truncated to maxNameLength.
func sanitize(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(len(fields[0]))
	for _, r := range fields[0] {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= maxNameLength {
			break
		}
	}
	return b.String()
}

func timestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36)
}

// randomSuffix returns length random base-36 characters. Falls back to a
// deterministic suffix if the system randomness source fails, which still
// resolves same-millisecond collisions on the next attempt.
func randomSuffix(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = charset[i%len(charset)]
		}
		return string(b)
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}
