package order

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	NumberPrefix     = "ORD"
	MaxDailySequence = 9999
	dayLayout        = "20060102"
)

var ErrSequenceExhausted = errors.New("daily order number sequence exhausted")

var numberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// DayKey is the calendar day, in t's location, that scopes the order sequence.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// FormatNumber renders ORD-YYYYMMDD-NNNN.
func FormatNumber(day string, seq int) (string, error) {
	if seq < 1 || seq > MaxDailySequence {
		return "", fmt.Errorf("%w: sequence %d for %s", ErrSequenceExhausted, seq, day)
	}
	return fmt.Sprintf("%s-%s-%04d", NumberPrefix, day, seq), nil
}

func ValidNumber(number string) bool {
	return numberPattern.MatchString(number)
}
