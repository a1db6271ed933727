package capture

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxTextLen is the maximum accepted capture text length in characters.
const MaxTextLen = 10000

// Draft is an inbound capture before the queue assigns identity and state.
type Draft struct {
	Text     string            `json:"text"`
	AudioRef string            `json:"audio_ref,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	Source   Source            `json:"source"`
}

// Validate checks the draft against ingress constraints.
func (d Draft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Text, validation.Required, validation.RuneLength(1, MaxTextLen)),
		validation.Field(&d.Source, validation.Required,
			validation.In(SourceExtension, SourceWeb, SourceAPI)),
	)
}
