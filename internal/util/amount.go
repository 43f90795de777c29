package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandsDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+(?:,\d+)?$`)
	reThousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParseAmount reads a money amount as written on Italian payroll documents
// ("1.234,56", "1234,56", "€ 1.500") and also accepts the dotted form.
func ParseAmount(input string) (float64, error) {
	s := strings.ReplaceAll(input, "\u00A0", " ")
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	s = strings.TrimSpace(strings.TrimSuffix(s, "€"))
	s = strings.TrimSuffix(strings.TrimSpace(s), "EUR")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("empty amount %q", input)
	}

	norm := normalizeNumericToken(s)
	value, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", input)
	}
	if negative {
		value = -value
	}
	return value, nil
}

// FormatAmount renders an amount the way the backend expects edited fields.
func FormatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func normalizeNumericToken(token string) string {
	switch {
	case reThousandsDot.MatchString(token):
		return strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", ".")
	case reThousandsComma.MatchString(token):
		return strings.ReplaceAll(token, ",", "")
	case strings.Contains(token, ",") && !strings.Contains(token, "."):
		return strings.ReplaceAll(token, ",", ".")
	}
	return token
}

func StringPtr(v string) *string {
	return &v
}

func FloatPtr(v float64) *float64 {
	return &v
}
