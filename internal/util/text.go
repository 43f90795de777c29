package util

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	reNonKey   = regexp.MustCompile(`[^a-z0-9_]+`)
	reSpaces   = regexp.MustCompile(`\s+`)
	reSplitter = regexp.MustCompile(`[\s_\-./()]+`)
	amountKeys = []string{"netto", "lordo", "importo", "totale", "imponibile", "trattenute"}
)

// NormalizeFieldKey turns a user typed key ("Codice Fiscale") into the
// snake_case form used by extracted fields.
func NormalizeFieldKey(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	repl := strings.NewReplacer("à", "a", "è", "e", "é", "e", "ì", "i", "ò", "o", "ù", "u")
	s = repl.Replace(s)
	s = reSpaces.ReplaceAllString(s, "_")
	s = reNonKey.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}

// IsAmountKey reports whether a field holds money and should be normalized.
func IsAmountKey(key string) bool {
	for _, k := range amountKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// ParseAssignment reads a "key=value" edit. Amount fields are normalized to
// the dotted two-decimal form.
func ParseAssignment(input string) (string, string, error) {
	key, value, ok := strings.Cut(input, "=")
	if !ok {
		return "", "", fmt.Errorf("expected key=value, got %q", input)
	}
	key = NormalizeFieldKey(key)
	if key == "" {
		return "", "", fmt.Errorf("empty field name in %q", input)
	}
	value = strings.TrimSpace(value)
	if IsAmountKey(key) && value != "" {
		amount, err := ParseAmount(value)
		if err != nil {
			return "", "", fmt.Errorf("%s: %w", key, err)
		}
		value = FormatAmount(amount)
	}
	return key, value, nil
}

// Tokenize lowercases and splits subjects and filenames into words.
func Tokenize(input string) []string {
	parts := reSplitter.Split(strings.ToLower(input), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func Truncate(input string, max int) string {
	r := []rune(input)
	if len(r) <= max {
		return input
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
