package generation

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/saju/pkg/quota"
	"github.com/dmitrymomot/saju/pkg/validator"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"

	minNameRunes = 2
	maxNameRunes = 50
	maxNoteRunes = 500
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Input is the subject of a reading as submitted by the user.
type Input struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	BirthTime string `json:"birth_time,omitempty"`
	IsLunar   bool   `json:"is_lunar"`
	Gender    string `json:"gender"`
	TimeZone  string `json:"time_zone,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Normalize trims every text field and converts it to NFC, so the same
// Hangul name typed on different keyboards is stored and searched alike.
func (in Input) Normalize() Input {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	return Input{
		Name:      clean(in.Name),
		BirthDate: clean(in.BirthDate),
		BirthTime: clean(in.BirthTime),
		IsLunar:   in.IsLunar,
		Gender:    strings.ToLower(clean(in.Gender)),
		TimeZone:  clean(in.TimeZone),
		Note:      clean(in.Note),
	}
}

// Validate returns validator.ValidationErrors describing every invalid field.
// Call it on a normalized input.
func (in Input) Validate() error {
	return validator.Apply(
		validator.Required("name", in.Name),
		validator.RuneLength("name", in.Name, minNameRunes, maxNameRunes),
		validator.Matches("birth_date", in.BirthDate, datePattern, "YYYY-MM-DD"),
		validator.When(datePattern.MatchString(in.BirthDate),
			validator.TimeLayout("birth_date", in.BirthDate, time.DateOnly, "YYYY-MM-DD")),
		validator.When(in.BirthTime != "",
			validator.Matches("birth_time", in.BirthTime, timePattern, "HH:MM")),
		validator.When(timePattern.MatchString(in.BirthTime),
			validator.TimeLayout("birth_time", in.BirthTime, "15:04", "HH:MM")),
		validator.OneOf("gender", in.Gender, GenderMale, GenderFemale),
		validator.When(in.TimeZone != "", validTimeZone(in.TimeZone)),
		validator.MaxRunes("note", in.Note, maxNoteRunes),
	)
}

func validTimeZone(name string) validator.Rule {
	return validator.Rule{
		Check: func() bool {
			_, err := time.LoadLocation(name)
			return err == nil
		},
		Error: validator.ValidationError{
			Field:   "time_zone",
			Code:    "time_zone",
			Message: "must be an IANA time zone such as Asia/Seoul",
		},
	}
}

func (in Input) subject() quota.Subject {
	return quota.Subject{
		Name:      in.Name,
		BirthDate: in.BirthDate,
		BirthTime: in.BirthTime,
		IsLunar:   in.IsLunar,
		Gender:    in.Gender,
		TimeZone:  in.TimeZone,
		Note:      in.Note,
	}
}
