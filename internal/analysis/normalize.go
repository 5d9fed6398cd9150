package analysis

import (
	"regexp"
	"strings"
	"time"
)

var (
	isoDate    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	dmyDate    = regexp.MustCompile(`^(\d{2})[/.\-](\d{2})[/.\-](\d{4})$`)
	amountJunk = regexp.MustCompile(`[^\d,.]`)
)

// NormalizeAmount renders a monetary value as "R$ X.XXX,XX". A trailing
// separator followed by one or two digits is the decimal separator.
func NormalizeAmount(v string) (string, bool) {
	s := amountJunk.ReplaceAllString(v, "")
	if !strings.ContainsAny(s, "0123456789") {
		return v, false
	}

	intPart, cents := s, "00"
	if i := strings.LastIndexAny(s, ",."); i >= 0 {
		tail := s[i+1:]
		if len(tail) == 1 || len(tail) == 2 {
			intPart = s[:i]
			cents = (tail + "0")[:2]
		}
	}
	intPart = strings.TrimLeft(digitsOnly(intPart), "0")
	if intPart == "" {
		intPart = "0"
	}
	return "R$ " + groupThousands(intPart) + "," + cents, true
}

// NormalizeDate renders a date as DD/MM/YYYY.
func NormalizeDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	var day, month, year string
	if m := isoDate.FindStringSubmatch(v); m != nil {
		year, month, day = m[1], m[2], m[3]
	} else if m := dmyDate.FindStringSubmatch(v); m != nil {
		day, month, year = m[1], m[2], m[3]
	} else {
		return v, false
	}
	out := day + "/" + month + "/" + year
	if _, err := time.Parse("02/01/2006", out); err != nil {
		return v, false
	}
	return out, true
}

// normalizeFields rewrites known field formats in place.
func normalizeFields(fields map[string]string) {
	for k, v := range fields {
		switch {
		case k == "amount":
			if n, ok := NormalizeAmount(v); ok {
				fields[k] = n
			}
		case strings.HasSuffix(k, "_date"):
			if n, ok := NormalizeDate(v); ok {
				fields[k] = n
			}
		}
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
