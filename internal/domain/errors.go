package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks a malformed observation sequence or parcel. It is
	// fatal to that parcel's run.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration marks an unusable option set. It is raised before any
	// parcel is processed.
	ErrConfiguration = errors.New("configuration error")
)

// InvalidInputError describes why a parcel's input was rejected.
type InvalidInputError struct {
	ParcelID string
	Date     time.Time // zero when the problem is not tied to a date
	Reason   string
}

func (e *InvalidInputError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("parcel %s: %s", e.ParcelID, e.Reason)
	}
	return fmt.Sprintf("parcel %s at %s: %s", e.ParcelID, e.Date.Format(DateLayout), e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// ConfigurationError names the offending option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func invalidInput(parcelID string, date time.Time, format string, args ...any) error {
	return &InvalidInputError{ParcelID: parcelID, Date: date, Reason: fmt.Sprintf(format, args...)}
}

func configErr(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}
