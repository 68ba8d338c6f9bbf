package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

func TestProperty_ErrorResponsesAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every error body carries code, message and timestamp", prop.ForAll(
		func(message string, statusCode int) bool {
			w := httptest.NewRecorder()

			RespondWithError(w, statusCode, message)

			if w.Code != statusCode {
				t.Logf("FAIL: Expected status %d, got %d", statusCode, w.Code)
				return false
			}
			if w.Header().Get("Content-Type") != "application/json" {
				t.Logf("FAIL: Wrong content type %q", w.Header().Get("Content-Type"))
				return false
			}

			var response ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Logf("FAIL: Body is not valid JSON: %v", err)
				return false
			}

			if response.Error.Message != message {
				t.Logf("FAIL: Message mismatch")
				return false
			}
			if response.Error.Code != http.StatusText(statusCode) {
				t.Logf("FAIL: Code mismatch: %q", response.Error.Code)
				return false
			}

			return response.Error.Timestamp != ""
		},
		gen.AlphaString(),
		gen.OneConstOf(
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRespondWithErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()

	RespondWithErrorDetails(w, http.StatusBadRequest, "insufficient stock", map[string]interface{}{
		"requested": 4,
		"available": 2,
	})

	var response ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}

	if response.Error.Details["requested"] != float64(4) {
		t.Fatalf("expected requested detail 4, got %v", response.Error.Details["requested"])
	}
	if response.Error.Details["available"] != float64(2) {
		t.Fatalf("expected available detail 2, got %v", response.Error.Details["available"])
	}
}

func TestRespondWithValidationErrors(t *testing.T) {
	w := httptest.NewRecorder()

	RespondWithValidationErrors(w, []ValidationError{
		{Field: "Email", Message: "Invalid email format"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var response ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if _, ok := response.Error.Details["validation_errors"]; !ok {
		t.Fatal("expected validation_errors detail")
	}
}

func TestPanicsBecomeInternalErrors(t *testing.T) {
	handler := ErrorHandlingMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database exploded: secret dsn")
	}))

	req := httptest.NewRequest("GET", "/api/products", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var response ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}

	// The panic value must never leak to the client
	if response.Error.Message != "internal server error" {
		t.Fatalf("panic detail leaked: %q", response.Error.Message)
	}
}
