package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func render(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	Handler(zerolog.Nop())(err, c)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec, body
}

func TestHandler_APIError(t *testing.T) {
	err := &Error{Status: http.StatusConflict, Code: CodeInvalidTransition, Message: "nope", CurrentStatus: "DONE"}
	rec, body := render(t, err)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["code"] != CodeInvalidTransition || body["current_status"] != "DONE" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandler_WrappedAPIError(t *testing.T) {
	err := errors.Join(errors.New("context"), NotFound("reservation not found"))
	rec, body := render(t, err)
	if rec.Code != http.StatusNotFound || body["code"] != CodeNotFound {
		t.Errorf("expected 404 NOT_FOUND, got %d %v", rec.Code, body)
	}
}

func TestHandler_EchoHTTPError(t *testing.T) {
	rec, body := render(t, echo.NewHTTPError(http.StatusForbidden, "insufficient role"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body["code"] != CodeForbidden || body["message"] != "insufficient role" {
		t.Errorf("unexpected body: %v", body)
	}

	rec, body = render(t, echo.ErrMethodNotAllowed)
	if rec.Code != http.StatusMethodNotAllowed || body["code"] != "METHOD_NOT_ALLOWED" {
		t.Errorf("unexpected mapping: %d %v", rec.Code, body)
	}
}

func TestHandler_PlainError(t *testing.T) {
	rec, body := render(t, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError || body["code"] != CodeInternal {
		t.Errorf("expected 500 INTERNAL, got %d %v", rec.Code, body)
	}
	if _, ok := body["current_status"]; ok {
		t.Error("current_status must be omitted when empty")
	}
}

func TestValidation(t *testing.T) {
	type req struct {
		Name string `validate:"required"`
		Age  int    `validate:"gte=0"`
	}
	err := validator.New().Struct(req{Age: -1})
	apiErr := Validation(err)
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != CodeValidation {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if apiErr.Fields["Name"] != "required" || apiErr.Fields["Age"] != "gte" {
		t.Errorf("unexpected fields: %v", apiErr.Fields)
	}

	plain := Validation(errors.New("bad json"))
	if plain.Code != CodeBadRequest {
		t.Errorf("expected BAD_REQUEST for non-validator error, got %s", plain.Code)
	}
}
