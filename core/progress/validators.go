package progress

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/0xDevansh/aries-week/core"
)

var (
	progressStatusTag  = "progress_status"
	progressStatusText = "must be one of not_started, in_progress or completed"
)

// InitValidators registers the progress validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(progressStatusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, progressStatusTag, progressStatusText)
}

// SetTaskStatus is the body of a task progress update.
type SetTaskStatus struct {
	Status Status  `json:"status" validate:"required,progress_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=2000"`
}

func (st *SetTaskStatus) Validate(validate *validator.Validate) error {
	if st.Notes != nil {
		notes := core.CleanString(*st.Notes)
		st.Notes = &notes
	}
	return validate.Struct(st)
}

// SetTrackStatus is the body of a track progress update.
type SetTrackStatus struct {
	Status Status `json:"status" validate:"required,progress_status"`
}

func (st *SetTrackStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(st)
}
