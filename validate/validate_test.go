package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Handle string `json:"handle" validate:"omitempty,tg_username"`
	Phone  string `json:"phone" validate:"omitempty,intl_phone"`
	Code   string `json:"code" validate:"omitempty,referral_code"`
	Name   string `json:"name" validate:"required"`
}

func TestStructValid(t *testing.T) {
	require.Nil(t, Struct(sample{
		Handle: "alice_dev",
		Phone:  "+7 (999) 123-45-67",
		Code:   "Ab3x9Q",
		Name:   "Alice",
	}))
}

func TestStructCollectsViolations(t *testing.T) {
	errs := Struct(sample{
		Handle: "ab",          // too short
		Phone:  "12345",       // no plus prefix
		Code:   "has space",   // non-alphanumeric
		Name:   "",            // required
	})
	require.NotNil(t, errs)
	require.Contains(t, errs, "handle")
	require.Contains(t, errs, "phone")
	require.Contains(t, errs, "code")
	require.Contains(t, errs, "name")
	require.Contains(t, errs["name"], "required")
}

func TestUsernameRules(t *testing.T) {
	valid := []string{"alice", "a1234", "Long_Handle_99"}
	invalid := []string{"abcd", "1alice", "_alice", "way_too_long_handle_over_32_chars_x"}

	for _, h := range valid {
		require.Nil(t, Struct(sample{Handle: h, Name: "x"}), "expected %q valid", h)
	}
	for _, h := range invalid {
		require.NotNil(t, Struct(sample{Handle: h, Name: "x"}), "expected %q invalid", h)
	}
}

func TestPhoneSeparatorCleanup(t *testing.T) {
	require.Nil(t, Struct(sample{Phone: "+1 (202) 555-0100", Name: "x"}))
	require.NotNil(t, Struct(sample{Phone: "+1", Name: "x"}))
	require.NotNil(t, Struct(sample{Phone: "202 555 0100", Name: "x"}))
}

func TestStructRejectsNonStruct(t *testing.T) {
	errs := Struct(42)
	require.NotNil(t, errs)
	require.NotEmpty(t, errs.Error())
}

func TestFieldErrorsMessage(t *testing.T) {
	errs := FieldErrors{
		"b": {"required"},
		"a": {"min=5", "alpha"},
	}
	require.Equal(t, "a: min=5, alpha; b: required", errs.Error())
}
