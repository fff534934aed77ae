package util

import (
	"errors"
	"strings"
	"testing"
)

func TestRangeError(t *testing.T) {
	err := &RangeError{Item: "20-10", Reason: "start value 20 greater than end value 10"}

	if !strings.Contains(err.Error(), "20-10") {
		t.Errorf("Error message should contain the item: %s", err)
	}
	if !errors.Is(err, ErrInvalidRange) {
		t.Error("RangeError should unwrap to ErrInvalidRange")
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("netbox.url is required")
		if !strings.Contains(err.Error(), "netbox.url is required") {
			t.Errorf("Error message should contain the error: %s", err)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Error("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("first", "second")
		msg := err.Error()
		if !strings.Contains(msg, "first") || !strings.Contains(msg, "second") {
			t.Errorf("Error message should list every error: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	v := &ValidationBuilder{}
	if v.Build() != nil {
		t.Error("empty builder should build nil")
	}

	v.Add(true, "never added").
		Add(false, "token missing").
		AddErrorf("device %d has no name", 2)

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	err := v.Build()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Build() = %T, want *ValidationError", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(ve.Errors), ve.Errors)
	}
}
