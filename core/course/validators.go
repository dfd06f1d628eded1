package course

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/0xDevansh/aries-week/core"
)

var (
	trackStatusTag  = "track_status"
	trackStatusText = "must be one of upcoming, current or completed"

	dateRangeText = "end date cannot be before start date"
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(trackStatusTag, trackStatusValidation)
	core.RegisterCustomTranslation(validate, translator, trackStatusTag, trackStatusText)
}

func trackStatusValidation(fl validator.FieldLevel) bool {
	return TrackStatus(fl.Field().String()).IsValid()
}

func checkDateRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: dateRangeText})
	}
	return nil
}
