package validation

import (
	"regexp"
	"strings"
	"time"
)

// DateLayout is the day-granularity format used for every stored date.
const DateLayout = "2006-01-02"

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func PositiveFloat(field string, val float64, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func NonNegativeFloat(field string, val float64, v Violations) {
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// OneOf flags value unless it is one of allowed. Empty values are left to Required.
func OneOf(field, value string, allowed []string, v Violations) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_choice"
}

// Date flags values that are not yyyy-MM-dd.
func Date(field, value string, v Violations) {
	if value == "" {
		return
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		v[field] = "invalid_date"
	}
}

// NotBefore flags end when it sorts before start. Both must be yyyy-MM-dd.
func NotBefore(field, start, end string, v Violations) {
	if start == "" || end == "" {
		return
	}
	if end < start {
		v[field] = "before_start"
	}
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func Email(field, value string, v Violations) {
	if value == "" {
		return
	}
	if !emailRe.MatchString(value) {
		v[field] = "invalid_email"
	}
}

func MinLength(field, value string, n int, v Violations) {
	if len(value) < n {
		v[field] = "too_short"
	}
}
