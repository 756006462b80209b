package applications

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^[\d\-+()]+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// SubmitInput is the public application form.
type SubmitInput struct {
	FromID            string `json:"from_id" validate:"required"`
	Name              string `json:"name" validate:"required"`
	Kana              string `json:"kana" validate:"required"`
	Phone             string `json:"phone" validate:"required,phone"`
	Email             string `json:"email" validate:"required,mailaddr"`
	Address           string `json:"address" validate:"required"`
	WorkHistory       string `json:"work_history" validate:"required"`
	DesiredConditions string `json:"desired_conditions" validate:"required"`
}

// Trimmed returns the input with surrounding whitespace removed from every field.
func (in SubmitInput) Trimmed() SubmitInput {
	return SubmitInput{
		FromID:            strings.TrimSpace(in.FromID),
		Name:              strings.TrimSpace(in.Name),
		Kana:              strings.TrimSpace(in.Kana),
		Phone:             strings.TrimSpace(in.Phone),
		Email:             strings.TrimSpace(in.Email),
		Address:           strings.TrimSpace(in.Address),
		WorkHistory:       strings.TrimSpace(in.WorkHistory),
		DesiredConditions: strings.TrimSpace(in.DesiredConditions),
	}
}

var requiredMessages = map[string]string{
	"from_id":            "案件IDが必要です",
	"name":               "氏名を入力してください",
	"kana":               "ふりがなを入力してください",
	"phone":              "電話番号を入力してください",
	"email":              "メールアドレスを入力してください",
	"address":            "現住所を入力してください",
	"work_history":       "職歴を入力してください",
	"desired_conditions": "希望条件を入力してください",
}

var formatMessages = map[string]string{
	"phone":    "正しい電話番号を入力してください",
	"mailaddr": "正しいメールアドレスを入力してください",
}

// ValidationError carries one message per invalid field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return "invalid fields: " + strings.Join(names, ", ")
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

var validate = newValidator()

// Validate checks every field of the trimmed input and reports all failures at once.
func Validate(in SubmitInput) error {
	err := validate.Struct(in.Trimmed())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		field := fe.Field()
		if msg, ok := formatMessages[fe.Tag()]; ok {
			out.Fields[field] = msg
			continue
		}
		out.Fields[field] = requiredMessages[field]
	}
	return out
}
