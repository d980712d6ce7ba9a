package invoice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern matches money with a one or two digit fraction:
// 1,234.56 | 1.234,56 | 118.00 | 118,00. Bare integers are never amounts.
var amountPattern = regexp.MustCompile(`\d{1,3}(?:,\d{3})+\.\d{1,2}|\d{1,3}(?:\.\d{3})+,\d{1,2}|\d+[.,]\d{1,2}`)

// percentLookahead is how many characters after a number are checked for a percent sign.
const percentLookahead = 3

// maxIntegerDigits rejects identifiers (RUC, DNI, phone numbers) that happen to carry a fraction.
const maxIntegerDigits = 9

// amountMatch is an accepted amount and the byte offset where it starts.
type amountMatch struct {
	value decimal.Decimal
	start int
}

// findAmounts returns every monetary amount in s, in order of appearance, starting at byte offset from.
// Tokens glued to letters, dates, times or followed by a percent sign are skipped.
func findAmounts(s string, from int) []decimal.Decimal {
	matches := matchAmounts(s, from)
	out := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.value)
	}
	return out
}

func matchAmounts(s string, from int) []amountMatch {
	if from < 0 || from > len(s) {
		from = 0
	}
	var out []amountMatch
	for _, loc := range amountPattern.FindAllStringIndex(s[from:], -1) {
		start, end := loc[0]+from, loc[1]+from
		if !amountBoundaryOK(s, start, end) {
			continue
		}
		if followedByPercent(s, end) {
			continue
		}
		amount, err := ParseAmount(s[start:end])
		if err != nil {
			continue
		}
		out = append(out, amountMatch{value: amount, start: start})
	}
	return out
}

// firstAmount returns the first acceptable amount in s from offset from.
func firstAmount(s string, from int) (decimal.Decimal, bool) {
	amounts := findAmounts(s, from)
	if len(amounts) == 0 {
		return decimal.Zero, false
	}
	return amounts[0], true
}

func followedByPercent(s string, end int) bool {
	limit := end + percentLookahead
	if limit > len(s) {
		limit = len(s)
	}
	return strings.Contains(s[end:limit], "%")
}

func amountBoundaryOK(s string, start, end int) bool {
	if start > 0 {
		prev := s[start-1]
		switch {
		case isASCIIDigit(prev), isASCIILetter(prev):
			return false
		case prev == '/' || prev == '.':
			// "S/118.00" and "S/.118.00" are fine, "15/03/2025" is not.
			if !hasCurrencyPrefix(s[:start]) {
				return false
			}
		case prev == '-' || prev == ',':
			return false
		case prev == ':' && start >= 2 && isASCIIDigit(s[start-2]):
			return false
		}
	}
	if end < len(s) {
		next := s[end]
		if isASCIIDigit(next) || next == '/' || isASCIILetter(next) && next != 'S' && next != 's' {
			return false
		}
		if (next == '.' || next == ',' || next == ':') && end+1 < len(s) && isASCIIDigit(s[end+1]) {
			return false
		}
	}
	integer := s[start:end]
	if idx := strings.LastIndexAny(integer, ".,"); idx >= 0 {
		integer = integer[:idx]
	}
	digits := strings.Count(integer, "") - 1 - strings.Count(integer, ",") - strings.Count(integer, ".")
	return digits <= maxIntegerDigits
}

func hasCurrencyPrefix(before string) bool {
	upper := strings.ToUpper(strings.TrimRight(before, " "))
	return strings.HasSuffix(upper, "S/") || strings.HasSuffix(upper, "S/.")
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }

func isASCIILetter(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' }

// ParseAmount parses a printed amount, handling currency symbols and both
// 1,234.56 and 1.234,56 conventions.
func ParseAmount(amountStr string) (decimal.Decimal, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(amountStr))
	for _, symbol := range []string{"US$", "S/.", "S/", "$", "PEN", "USD", "SOLES"} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,56
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 && strings.Count(cleaned, ",") == 1 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount: %s", amountStr)
	}
	return amount, nil
}
