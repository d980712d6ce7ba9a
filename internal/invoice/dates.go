package invoice

import (
	"regexp"
	"strconv"
	"time"

	"comprobantes/pkg/models"
)

var (
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})\s*[/.\-]\s*(\d{1,2})\s*[/.\-]\s*(\d{4}|\d{2})\b`)
	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	// Matched against normalized (accent-free, upper case) text.
	writtenDatePattern = regexp.MustCompile(`\b(\d{1,2})\s+DE\s+(ENERO|FEBRERO|MARZO|ABRIL|MAYO|JUNIO|JULIO|AGOSTO|SETIEMBRE|SEPTIEMBRE|OCTUBRE|NOVIEMBRE|DICIEMBRE)\s+(?:DE|DEL)\s+(\d{4})\b`)
)

var spanishMonths = map[string]time.Month{
	"ENERO":      time.January,
	"FEBRERO":    time.February,
	"MARZO":      time.March,
	"ABRIL":      time.April,
	"MAYO":       time.May,
	"JUNIO":      time.June,
	"JULIO":      time.July,
	"AGOSTO":     time.August,
	"SETIEMBRE":  time.September,
	"SEPTIEMBRE": time.September,
	"OCTUBRE":    time.October,
	"NOVIEMBRE":  time.November,
	"DICIEMBRE":  time.December,
}

// Two-digit years below the pivot are 20xx, the rest 19xx.
const twoDigitYearPivot = 50

// ParseDate finds the first valid calendar date in line. Numeric dates are read
// day first (DD/MM/YYYY, DD-MM-YY, DD.MM.YYYY); ISO dates and the written form
// "15 de marzo de 2025" are accepted too.
func ParseDate(line string) (time.Time, bool) {
	for _, m := range numericDatePattern.FindAllStringSubmatch(line, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year < twoDigitYearPivot {
				year += 2000
			} else {
				year += 1900
			}
		}
		if d, ok := calendarDate(year, month, day); ok {
			return d, true
		}
	}
	for _, m := range isoDatePattern.FindAllStringSubmatch(line, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if d, ok := calendarDate(year, month, day); ok {
			return d, true
		}
	}
	for _, m := range writtenDatePattern.FindAllStringSubmatch(normalizeLine(line), -1) {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		if d, ok := calendarDate(year, int(spanishMonths[m[2]]), day); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// calendarDate rejects impossible dates such as 31/02 instead of letting time.Date roll them over.
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2099 {
		return time.Time{}, false
	}
	d := models.Date(year, time.Month(month), day)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}
