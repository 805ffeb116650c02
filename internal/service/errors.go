package service

import "net/http"

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code             string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.ErrorDescription == "" {
		return e.Code
	}
	return e.Code + ": " + e.ErrorDescription
}

// Status returns the HTTP status the error is reported with
func (e *OAuthError) Status() int {
	switch e.Code {
	case "consent_required":
		return http.StatusForbidden
	case "rate_limited":
		return http.StatusTooManyRequests
	case "server_error":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// OAuth 2.0 error constructors
func NewInvalidRequestError(description string) *OAuthError {
	return &OAuthError{
		Code:             "invalid_request",
		ErrorDescription: description,
	}
}

func NewInvalidClientError(description string) *OAuthError {
	return &OAuthError{
		Code:             "invalid_client",
		ErrorDescription: description,
	}
}

func NewInvalidGrantError(description string) *OAuthError {
	return &OAuthError{
		Code:             "invalid_grant",
		ErrorDescription: description,
	}
}

func NewUnsupportedGrantTypeError(description string) *OAuthError {
	return &OAuthError{
		Code:             "unsupported_grant_type",
		ErrorDescription: description,
	}
}

func NewUnsupportedResponseTypeError(description string) *OAuthError {
	return &OAuthError{
		Code:             "unsupported_response_type",
		ErrorDescription: description,
	}
}

func NewInvalidScopeError(description string) *OAuthError {
	return &OAuthError{
		Code:             "invalid_scope",
		ErrorDescription: description,
	}
}

func NewInvalidClientIDError() *OAuthError {
	return &OAuthError{Code: "invalid_client_id"}
}

func NewConsentRequiredError() *OAuthError {
	return &OAuthError{
		Code:             "consent_required",
		ErrorDescription: "the user has not approved this client",
	}
}

func NewServerError() *OAuthError {
	return &OAuthError{Code: "server_error"}
}
