package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/lms-backend/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Custom struct-level tags.
const (
	tagMinOptions    = "min_options"
	tagNoOptions     = "no_options"
	tagAnswerMatches = "answer_matches"
)

var customMessages = map[string]string{
	tagMinOptions:    "{0} must contain at least 2 options for a single-choice question",
	tagNoOptions:     "{0} must be empty for a true-false question",
	tagAnswerMatches: "{0} does not match the question kind or options",
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		v.RegisterStructValidation(validateQuestion, model.CreateQuestionRequest{})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)

		for tag, msg := range customMessages {
			registerMessage(v, tag, msg)
		}
	}
}

func registerMessage(v *govalidator.Validate, tag, msg string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		},
		func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}

// validateQuestion checks that options and the correct answer fit the question kind.
func validateQuestion(sl govalidator.StructLevel) {
	req := sl.Current().Interface().(model.CreateQuestionRequest)

	switch req.Kind {
	case model.QuestionKindSingleChoice:
		if len(req.Options) < 2 {
			sl.ReportError(req.Options, "options", "Options", tagMinOptions, "")
			return
		}
	case model.QuestionKindTrueFalse:
		if len(req.Options) > 0 {
			sl.ReportError(req.Options, "options", "Options", tagNoOptions, "")
			return
		}
	default:
		return
	}

	q := req.ToQuestion(0)
	if err := q.Accepts(req.CorrectAnswer); err != nil {
		sl.ReportError(req.CorrectAnswer, "correct_answer", "CorrectAnswer", tagAnswerMatches, "")
	}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// fieldPath keeps the index of nested question errors, e.g. "questions[1].options".
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
