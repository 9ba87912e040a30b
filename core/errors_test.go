package core

import (
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorConstructorsCarryTextCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
		check    func(error) bool
	}{
		{"auth_expired", NewAuthExpiredError("session expired", nil), SessionErrorAuthExpired, IsAuthExpired},
		{"network", NewNetworkError("dial failed", fmt.Errorf("connection refused")), SessionErrorNetwork, IsNetworkError},
		{"storage", NewStorageError("vault unavailable", nil), SessionErrorStorage, IsStorageError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var richErr *goerrors.Error
			if !goerrors.As(tc.err, &richErr) {
				t.Fatalf("expected a rich error, got %T", tc.err)
			}
			if richErr.TextCode != tc.textCode {
				t.Fatalf("text code = %q, want %q", richErr.TextCode, tc.textCode)
			}
			if !tc.check(tc.err) {
				t.Fatal("predicate did not match its own constructor")
			}
		})
	}
}

func TestNewHTTPErrorCategories(t *testing.T) {
	cases := []struct {
		status   int
		category goerrors.Category
	}{
		{http.StatusForbidden, goerrors.CategoryAuthz},
		{http.StatusNotFound, goerrors.CategoryNotFound},
		{http.StatusTooManyRequests, goerrors.CategoryRateLimit},
		{http.StatusUnprocessableEntity, goerrors.CategoryBadInput},
		{http.StatusBadGateway, goerrors.CategoryExternal},
	}
	for _, tc := range cases {
		err := NewHTTPError(tc.status, "request failed")
		if err.Category != tc.category {
			t.Fatalf("status %d: category = %v, want %v", tc.status, err.Category, tc.category)
		}
		status, ok := HTTPStatus(err)
		if !ok || status != tc.status {
			t.Fatalf("HTTPStatus = (%d, %v), want %d", status, ok, tc.status)
		}
	}
}

func TestHTTPStatusRejectsOtherErrors(t *testing.T) {
	if _, ok := HTTPStatus(fmt.Errorf("plain error")); ok {
		t.Fatal("plain errors must not report an HTTP status")
	}
	if _, ok := HTTPStatus(NewNetworkError("offline", nil)); ok {
		t.Fatal("network errors must not report an HTTP status")
	}
}

func TestSessionErrorMapperClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		name     string
		input    error
		textCode string
	}{
		{"refresh_token", fmt.Errorf("no refresh token available"), SessionErrorAuthExpired},
		{"lock_held", fmt.Errorf("renewal lock already held"), SessionErrorRefreshLocked},
		{"vault", fmt.Errorf("vault is sealed"), SessionErrorStorage},
		{"validation", fmt.Errorf("username is required"), SessionErrorBadInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := sessionErrorMapper(tc.input)
			if mapped == nil {
				t.Fatal("mapper returned nil")
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("text code = %q, want %q", mapped.TextCode, tc.textCode)
			}
		})
	}
}

func TestSessionErrorMapperPreservesRichErrors(t *testing.T) {
	original := NewHTTPError(http.StatusNotFound, "missing")
	mapped := sessionErrorMapper(original)
	if mapped.TextCode != SessionErrorHTTP || mapped.Code != http.StatusNotFound {
		t.Fatalf("mapped = %+v, want the original envelope preserved", mapped)
	}
}

func TestEnsureSessionErrorEnvelopeFillsDefaults(t *testing.T) {
	err := ensureSessionErrorEnvelope(goerrors.New("boom", goerrors.CategoryConflict))
	if err.Code != http.StatusConflict {
		t.Fatalf("code = %d, want 409", err.Code)
	}
	if err.TextCode != SessionErrorRefreshLocked {
		t.Fatalf("text code = %q", err.TextCode)
	}
}
