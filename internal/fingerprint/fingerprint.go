// Package fingerprint derives deterministic cache keys from normalized requests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// separator keeps adjacent fields from running into each other ("ab"+"c" vs "a"+"bc").
const separator = "\x1f"

// Input is the request content that participates in the key.
type Input struct {
	Kind     string
	Category string
	Content  string
	Keywords []string
	Limit    int
	// TLD scopes suggestion candidates and their availability; empty for tasks.
	TLD string
}

// Key returns the hex SHA-256 digest of the normalized input. Two inputs that differ only in
// keyword order, keyword duplication, or letter case map to the same key.
func Key(in Input) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(in.Kind)))
	b.WriteString(separator)
	b.WriteString(strings.ToLower(strings.TrimSpace(in.Category)))
	b.WriteString(separator)
	b.WriteString(strings.ToLower(strings.TrimSpace(in.Content)))
	b.WriteString(separator)
	b.WriteString(strings.Join(Normalize(in.Keywords), ","))
	b.WriteString(separator)
	b.WriteString(strconv.Itoa(in.Limit))
	b.WriteString(separator)
	b.WriteString(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.TLD), ".")))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases, trims, sorts, and de-duplicates keywords. Blank keywords are dropped.
// The input slice is not modified.
func Normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
