package metrics

import (
	"sort"
	"strings"
	"unicode"
)

var friendlyKinds = map[string]string{
	"connection_refused": "Connection refused",
	"connection_reset":   "Connection reset",
	"timeout":            "Timeout",
	"tls":                "TLS handshake error",
	"dns":                "DNS lookup failure",
	"canceled":           "Canceled",
	"invalid_request":    "Invalid request",
	"other":              "Other transport error",
}

// FriendlyKindName returns a human-friendly label for an error kind.
func FriendlyKindName(kind string) string {
	cleaned := strings.TrimSpace(kind)
	if cleaned == "" {
		return "Unknown error"
	}
	if alias, ok := friendlyKinds[strings.ToLower(cleaned)]; ok {
		return alias
	}
	words := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return "Unknown error"
	}
	words[0] = capitalize(words[0])
	for i := 1; i < len(words); i++ {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, " ")
}

// KindCount is one row of the error-kind breakdown.
type KindCount struct {
	Kind  string
	Count int64
}

// SortedKinds orders an error breakdown by descending count, then kind.
func SortedKinds(errs map[string]int64) []KindCount {
	rows := make([]KindCount, 0, len(errs))
	for k, v := range errs {
		rows = append(rows, KindCount{Kind: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
