package main

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgTitleLength   = "Title must be at least 2 characters long"
	msgTitleChars    = "Title can only have alphanumeric characters"
	msgRequired      = "Missing data for required field."
	msgOngoingExists = "an ongoing card already exists"
)

var titlePattern = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string { return strings.ToLower(f.Name) })
	// alphanum alone rejects spaces
	_ = v.RegisterValidation("cardtitle", func(fl validator.FieldLevel) bool {
		return titlePattern.MatchString(fl.Field().String())
	})
	return v
}

// CardInput carries proposed card fields. An empty field is treated as not
// supplied: on update it keeps the stored value.
type CardInput struct {
	Title       string `validate:"omitempty,min=2,cardtitle"`
	Description string
	Status      string `validate:"omitempty,oneof='To Do' Ongoing Done Testing Deployed"`
	Priority    string `validate:"omitempty,oneof=Low Medium High Urgent"`
}

// OngoingPolicy controls how the single-Ongoing check counts rows.
// With ExcludeSelf the card being updated is left out of the count, so
// re-saving the current Ongoing card does not conflict with itself.
type OngoingPolicy struct {
	ExcludeSelf bool
}

func validateCardInput(in CardInput, creating bool) error {
	if creating {
		if err := validate.Var(in.Title, "required"); err != nil {
			return fieldError("title", err)
		}
	}
	return fieldError("", validate.Struct(in))
}

func validateTitle(title string) error {
	return fieldError("title", validate.Var(title, "min=2,cardtitle"))
}

// fieldError turns the first validator failure into an OpError. field names
// the value for errors from Var, which carry no field name.
func fieldError(field string, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fe := errs[0]
	if fe.Field() != "" {
		field = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return invalid(field, msgRequired)
	case "min":
		return invalid(field, msgTitleLength)
	case "cardtitle":
		return invalid(field, msgTitleChars)
	case "oneof":
		if field == "status" {
			return invalid(field, oneOf(validStatuses))
		}
		return invalid(field, oneOf(validPriorities))
	}
	return invalid(field, fe.Error())
}

func oneOf(choices []string) string {
	return "Must be one of: " + strings.Join(choices, ", ") + "."
}

// checkOngoing rejects status Ongoing when another committed card holds it.
// It must run in the same transaction as the write. cardID is 0 on create.
func checkOngoing(ctx context.Context, tx Session, policy OngoingPolicy, status string, cardID int64) error {
	if status != StatusOngoing {
		return nil
	}
	var exclude int64
	if policy.ExcludeSelf {
		exclude = cardID
	}
	n, err := tx.CountCardsWithStatus(ctx, StatusOngoing, exclude)
	if err != nil {
		return err
	}
	if n > 0 {
		return invalid("status", msgOngoingExists)
	}
	return nil
}

// applyTo replaces each stored field whose input is non-empty.
func (in CardInput) applyTo(c *Card) {
	if in.Title != "" {
		c.Title = in.Title
	}
	if in.Description != "" {
		c.Description = in.Description
	}
	if in.Status != "" {
		c.Status = in.Status
	}
	if in.Priority != "" {
		c.Priority = in.Priority
	}
}
