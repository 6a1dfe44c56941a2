// Package handlers defines the HTTP-layer error codes returned in the
// ErrorResponse envelope. Codes are lowercase snake_case and stable; clients
// (and operators reading Telegram's getWebhookInfo last_error_message) can
// branch on them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "bad_update",
//	  "message": "update carries neither message nor callback_query"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Relay-specific:
	ErrCodeBadUpdate     = "bad_update"
	ErrCodeNotConfigured = "not_configured"
)
