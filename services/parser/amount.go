package parser

import (
	"strconv"
	"strings"
)

// ParseAmount converts a raw currency string into a decimal value under the
// upstream locale rules:
//
//	comma only        → comma is the decimal separator ("0,45" → 0.45)
//	comma and dot     → dot is thousands, comma is decimal ("1.500,45" → 1500.45)
//	dot only / plain  → parsed as-is ("45.50" → 45.50)
//
// Unparseable or absent input yields 0.
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return value
}
