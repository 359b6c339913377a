package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kjstillabower/event-weather-service/internal/models"
)

// Location length bounds in runes.
const (
	LocationMinLength = 1
	LocationMaxLength = 100
)

// EventTypeMaxLength bounds event type tags in runes.
const EventTypeMaxLength = 64

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooShort is returned when location length is below the minimum.
var ErrLocationTooShort = errors.New("location too short")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma, hyphen,
// period and apostrophe. Returns the trimmed string or an error suitable for 400 responses.
// Case is preserved: the cache keys on the location exactly as supplied.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// isAllowedLocationRune returns true for letters (Unicode), digits, space, comma, hyphen, period, apostrophe.
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ErrDateInvalid is returned for dates not in YYYY-MM-DD form.
var ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

// ValidateDate parses a calendar date as midnight UTC.
func ValidateDate(input string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(input))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateInvalid, input)
	}
	return d, nil
}

// ErrEventTypeEmpty is returned when no event type is given.
var ErrEventTypeEmpty = errors.New("event type is required")

// ErrEventTypeTooLong is returned when the event type exceeds EventTypeMaxLength.
var ErrEventTypeTooLong = errors.New("event type too long")

// ValidateEventType trims the tag and enforces presence and length. Unknown tags are
// accepted; they score zero.
func ValidateEventType(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrEventTypeEmpty
	}
	if len([]rune(s)) > EventTypeMaxLength {
		return "", ErrEventTypeTooLong
	}
	return s, nil
}
