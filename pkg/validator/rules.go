package validator

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Code: "required", Message: "field is required"},
	}
}

// RuneLength counts characters, not bytes, so Hangul names of two syllables
// pass a minimum of two.
func RuneLength(field, value string, min, max int) Rule {
	return Rule{
		Check: func() bool {
			n := utf8.RuneCountInString(value)
			return n >= min && n <= max
		},
		Error: ValidationError{
			Field:   field,
			Code:    "length",
			Message: fmt.Sprintf("must be between %d and %d characters long", min, max),
			Params:  map[string]any{"min": min, "max": max},
		},
	}
}

func MaxRunes(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{
			Field:   field,
			Code:    "max_length",
			Message: fmt.Sprintf("must be at most %d characters long", max),
			Params:  map[string]any{"max": max},
		},
	}
}

// Matches checks value against pattern. format is shown to the user.
func Matches(field, value string, pattern *regexp.Regexp, format string) Rule {
	return Rule{
		Check: func() bool { return pattern.MatchString(value) },
		Error: ValidationError{
			Field:   field,
			Code:    "format",
			Message: "must have the format " + format,
			Params:  map[string]any{"format": format},
		},
	}
}

// TimeLayout checks that value parses with layout, catching values such as
// 2024-02-30 or 25:00 that a pattern accepts.
func TimeLayout(field, value, layout, format string) Rule {
	return Rule{
		Check: func() bool {
			_, err := time.Parse(layout, value)
			return err == nil
		},
		Error: ValidationError{
			Field:   field,
			Code:    "format",
			Message: "must be a valid value of the form " + format,
			Params:  map[string]any{"format": format},
		},
	}
}

func OneOf[T comparable](field string, value T, allowed ...T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(allowed, value) },
		Error: ValidationError{
			Field:   field,
			Code:    "one_of",
			Message: fmt.Sprintf("must be one of %v", allowed),
			Params:  map[string]any{"allowed": allowed},
		},
	}
}
