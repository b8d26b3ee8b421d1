// Package validation holds the schema shared by review create and update.
package validation

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Service holds a singleton validator and translator
type Service struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *Service
)

// Get returns the validator singleton, initializing on first use
func Get() *Service {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New()

		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		registerShort(v, trans, "required", "{0} is required")
		registerShort(v, trans, "min", "{0} must be at least {1}")
		registerShort(v, trans, "max", "{0} must be at most {1}")

		svc = &Service{Validator: v, Translator: trans}
	})
	return svc
}

// Struct validates v and returns a *models.Error of kind validation_failed
// listing every offending field.
func Struct(v any) error {
	err := Get().Validator.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return models.NewValidationError("", err.Error())
	}

	out := &models.Error{
		Kind:   models.KindValidationFailed,
		Fields: make(map[string]string, len(verrs)),
	}
	for _, fe := range verrs {
		msg := fe.Translate(Get().Translator)
		out.Fields[fe.Field()] = msg
		if out.Field == "" {
			out.Field = fe.Field()
			out.Message = msg
		}
	}
	return out
}

// Draft is a review body that has passed the shared schema. The zero value is not
// usable; build one with NewDraft or DecodeDraft.
type Draft struct {
	input models.ReviewInput
}

// NewDraft trims the text fields and validates the result.
func NewDraft(in models.ReviewInput) (Draft, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Author = strings.TrimSpace(in.Author)
	if err := Struct(in); err != nil {
		return Draft{}, err
	}
	return Draft{input: in}, nil
}

// DecodeDraft parses a JSON body and validates it. A rating that is not an
// integer is reported against the rating field.
func DecodeDraft(body []byte) (Draft, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Draft{}, models.NewValidationError("", "Invalid body")
	}

	var in models.ReviewInput
	if err := json.Unmarshal(body, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Draft{}, models.NewValidationError(typeErr.Field, typeErr.Field+" must be an integer")
		}
		return Draft{}, models.NewValidationError("", "Invalid body")
	}
	return NewDraft(in)
}

// Input returns the validated body.
func (d Draft) Input() models.ReviewInput { return d.input }

// Valid reports whether d came from NewDraft.
func (d Draft) Valid() bool { return d.input.Title != "" }

// Preview builds an unsaved review from the draft; ID and CreatedAt stay zero.
func (d Draft) Preview() models.Review {
	return d.input.Apply(models.Review{})
}

func registerShort(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}
