package validate

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string {
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Collect keeps the non-nil field errors; it returns nil when there are none.
func Collect(fields ...*ErrField) error {
	var out Errs
	for _, f := range fields {
		if f != nil {
			out = append(out, *f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func Email(field, value string) *ErrField {
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 {
		return &ErrField{Field: field, Msg: "must be an email address"}
	}
	return nil
}

func MinLen(field, value string, n int) *ErrField {
	if len(strings.TrimSpace(value)) < n {
		return &ErrField{Field: field, Msg: "too short"}
	}
	return nil
}

func MinDecimal(field string, v, min decimal.Decimal) *ErrField {
	if v.LessThan(min) {
		return &ErrField{Field: field, Msg: "must be >= " + min.String()}
	}
	return nil
}

func WholeNumber(field string, v decimal.Decimal) *ErrField {
	if !v.Equal(v.Truncate(0)) {
		return &ErrField{Field: field, Msg: "must be a whole number"}
	}
	return nil
}
