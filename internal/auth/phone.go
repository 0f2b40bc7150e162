package auth

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPhoneNumber is returned when a phone number has fewer than 10 or more than 15 digits.
var ErrInvalidPhoneNumber = errors.New("auth: phone number must contain between 10 and 15 digits")

const (
	maskGlyph       = "•"
	maskPrefix      = "••••••"
	minPhoneDigits  = 10
	maxPhoneDigits  = 15
	visiblePhoneLen = 4
)

// NormalizePhone strips everything but digits and returns the number with a leading '+'.
func NormalizePhone(raw string) (string, error) {
	digits := digitsOnly(raw)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", ErrInvalidPhoneNumber
	}
	return "+" + digits, nil
}

// LastFour returns the trailing four digits of a normalized number.
func LastFour(normalized string) string {
	digits := digitsOnly(normalized)
	if len(digits) <= visiblePhoneLen {
		return digits
	}
	return digits[len(digits)-visiblePhoneLen:]
}

// MaskPhone renders a normalized number as six mask glyphs followed by its last four digits.
func MaskPhone(normalized string) string {
	return MaskPhoneLastFour(LastFour(normalized))
}

// MaskPhoneLastFour masks a stored last-four value. Non-digits are dropped and
// short values are left-padded with the mask glyph, so at most four digits show.
func MaskPhoneLastFour(lastFour string) string {
	digits := digitsOnly(lastFour)
	if len(digits) > visiblePhoneLen {
		digits = digits[len(digits)-visiblePhoneLen:]
	}
	if pad := visiblePhoneLen - utf8.RuneCountInString(digits); pad > 0 {
		digits = strings.Repeat(maskGlyph, pad) + digits
	}
	return maskPrefix + digits
}

func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
