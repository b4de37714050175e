// Package validator builds declarative validation from small Rule values.
//
// Each helper returns a Rule pairing a Check with the ValidationError reported
// when it fails. Apply evaluates every rule and aggregates the failures into
// ValidationErrors, which implements error and matches ErrValidationFailed:
//
//	err := validator.Apply(
//		validator.RuneLength("name", name, 2, 50),
//		validator.TimeLayout("birth_date", date, time.DateOnly, "YYYY-MM-DD"),
//		validator.When(birthTime != "", validator.TimeLayout("birth_time", birthTime, "15:04", "HH:MM")),
//	)
//	if ve := validator.Extract(err); ve != nil {
//		// report ve per field
//	}
package validator
