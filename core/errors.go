package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SessionErrorBadInput      = "SESSION_BAD_INPUT"
	SessionErrorAuthExpired   = "SESSION_AUTH_EXPIRED"
	SessionErrorHTTP          = "SESSION_HTTP_ERROR"
	SessionErrorNetwork       = "SESSION_NETWORK_ERROR"
	SessionErrorStorage       = "SESSION_STORAGE_ERROR"
	SessionErrorRefreshLocked = "SESSION_REFRESH_LOCKED"
	SessionErrorInternal      = "SESSION_INTERNAL_ERROR"
)

// NewAuthExpiredError marks the terminal failure mode: renewal failed and the
// caller must force a login redirect after local state has been cleared.
func NewAuthExpiredError(message string, cause error) *goerrors.Error {
	if cause != nil {
		return ensureSessionErrorEnvelope(
			goerrors.Wrap(cause, goerrors.CategoryAuth, message).
				WithTextCode(SessionErrorAuthExpired),
		)
	}
	return ensureSessionErrorEnvelope(
		goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(SessionErrorAuthExpired),
	)
}

// NewHTTPError wraps any non-401 non-2xx response. Never retried by this core.
func NewHTTPError(status int, message string) *goerrors.Error {
	category := goerrors.CategoryExternal
	switch {
	case status == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case status == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		category = goerrors.CategoryBadInput
	}
	return goerrors.New(message, category).
		WithCode(status).
		WithTextCode(SessionErrorHTTP)
}

// NewNetworkError wraps a transport-level failure (offline, DNS, timeout).
// Recovery happens opportunistically on the next reconciliation, never here.
func NewNetworkError(message string, cause error) *goerrors.Error {
	if cause != nil {
		return goerrors.Wrap(cause, goerrors.CategoryExternal, message).
			WithCode(http.StatusBadGateway).
			WithTextCode(SessionErrorNetwork)
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(SessionErrorNetwork)
}

// NewStorageError marks the credential vault as unavailable in the current
// context. Fatal for the single operation; callers must log it.
func NewStorageError(message string, cause error) *goerrors.Error {
	if cause != nil {
		return goerrors.Wrap(cause, goerrors.CategoryInternal, message).
			WithCode(http.StatusInternalServerError).
			WithTextCode(SessionErrorStorage)
	}
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(SessionErrorStorage)
}

func IsAuthExpired(err error) bool {
	return hasTextCode(err, SessionErrorAuthExpired)
}

func IsNetworkError(err error) bool {
	return hasTextCode(err, SessionErrorNetwork)
}

func IsStorageError(err error) bool {
	return hasTextCode(err, SessionErrorStorage)
}

// HTTPStatus extracts the response status from an HTTP error, if any.
func HTTPStatus(err error) (int, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return 0, false
	}
	if strings.TrimSpace(richErr.TextCode) != SessionErrorHTTP {
		return 0, false
	}
	return richErr.Code, true
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.TrimSpace(richErr.TextCode) == textCode
}

func sessionErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSessionErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "refresh token"), strings.Contains(msg, "session expired"):
		return newSessionError(err.Error(), goerrors.CategoryAuth, SessionErrorAuthExpired)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "renewal lock"):
		return newSessionError(err.Error(), goerrors.CategoryConflict, SessionErrorRefreshLocked)
	case strings.Contains(msg, "storage scope"), strings.Contains(msg, "vault"):
		return newSessionError(err.Error(), goerrors.CategoryInternal, SessionErrorStorage)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newSessionError(err.Error(), goerrors.CategoryBadInput, SessionErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSessionErrorEnvelope(mapped)
}

func newSessionError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSessionErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSessionErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = sessionHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSessionTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSessionTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SessionErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SessionErrorAuthExpired
	case goerrors.CategoryConflict:
		return SessionErrorRefreshLocked
	case goerrors.CategoryExternal:
		return SessionErrorNetwork
	default:
		return SessionErrorInternal
	}
}

func sessionHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
