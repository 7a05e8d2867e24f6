package service

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kondiv/shop/internal/domain"
)

// validator collects field errors so callers see every problem at once.
type validator struct {
	fields []domain.FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.fields = append(v.fields, domain.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0 && min > 0:
		v.add(field, "%s is required", field)
	case n < min:
		v.add(field, "%s must be at least %d characters", field, min)
	case max > 0 && n > max:
		v.add(field, "%s must be at most %d characters", field, max)
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return domain.Invalid(v.fields...)
}

func (v *validator) role(field, value string) domain.Role {
	if strings.TrimSpace(value) == "" {
		v.add(field, "%s is required", field)
		return 0
	}
	r, err := domain.ParseRole(value)
	if err != nil {
		v.add(field, "%s must be one of Seller, Buyer", field)
	}
	return r
}

func (v *validator) category(field, value string) domain.Category {
	c, err := domain.ParseCategory(value)
	if err != nil {
		names := make([]string, 0, len(domain.Categories()))
		for _, c := range domain.Categories() {
			names = append(names, c.String())
		}
		v.add(field, "%s must be one of %s", field, strings.Join(names, ", "))
	}
	return c
}

// Paging selects one page of a list. Number starts at 1.
type Paging struct {
	Number int
	Size   int
}

func (p Paging) validate(v *validator) {
	if p.Number <= 0 {
		v.add("page", "page must be greater than 0")
	}
	if p.Size <= 0 {
		v.add("maxPageSize", "maxPageSize must be greater than 0")
		return
	}
	// offset() must not overflow
	if p.Number > 0 && p.Number-1 > math.MaxInt/p.Size {
		v.add("page", "page is out of range")
	}
}

// offset is only meaningful once validate passed
func (p Paging) offset() int {
	return (p.Number - 1) * p.Size
}
