package validator

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

type loginPayload struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

func TestValidate_OK(t *testing.T) {
	p := loginPayload{Email: "alice@example.com", Password: "Str0ngPass!"}
	if err := Validate(p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	err := Validate(loginPayload{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	fields := ve.Fields()
	if fields["Email"] != "is required" {
		t.Errorf("Email message = %q", fields["Email"])
	}
	if fields["Password"] != "is required" {
		t.Errorf("Password message = %q", fields["Password"])
	}
}

func TestValidate_BadEmail(t *testing.T) {
	err := Validate(loginPayload{Email: "not-an-email", Password: "Str0ngPass!"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T", err)
	}
	if got := ve.Fields()["Email"]; got != "must be a valid email address" {
		t.Errorf("Email message = %q", got)
	}
}

func TestValidate_ShortPassword(t *testing.T) {
	err := Validate(loginPayload{Email: "alice@example.com", Password: "short"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T", err)
	}
	if got := ve.Fields()["Password"]; got != "must be at least 8 characters" {
		t.Errorf("Password message = %q", got)
	}
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	type payload struct {
		FirstName string `json:"first_name" validate:"required"`
	}

	err := Validate(payload{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T", err)
	}
	if _, ok := ve.Fields()["first_name"]; !ok {
		t.Errorf("Fields() = %v, want key %q", ve.Fields(), "first_name")
	}
}

func TestDecodeAndValidate_RejectsUnknownFields(t *testing.T) {
	type payload struct {
		Email string `json:"email" validate:"required,email"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"alice@example.com","extra":true}`))

	var p payload
	if err := DecodeAndValidate(req, &p); err == nil {
		t.Fatal("expected decode error for unknown field")
	}
}
