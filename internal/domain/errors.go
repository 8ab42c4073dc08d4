package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrBadCredentials hides whether the account or the password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	// This is the one failure surfaced distinctly: a locked legitimate user
	// benefits from knowing.
	ErrAccountLocked = errors.New("account locked")
	// ErrTokenInvalid covers malformed, forged, expired, and wrong-type tokens.
	// Callers collapse all token failures into it so verification gives no oracle.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrSessionInvalid covers inactive, expired, and mismatched sessions.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrUnauthorized is the generic authenticated-surface failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrProviderMismatch rejects a federated login whose email already belongs
	// to an account owned by a different provider. Without this guard an email
	// collision across providers becomes an account takeover.
	ErrProviderMismatch = errors.New("account registered with a different provider")
	// ErrMissingEmailClaim rejects federated identities without an email.
	// Account uniqueness is keyed on email, so there is no fallback key.
	ErrMissingEmailClaim = errors.New("identity provider returned no email")
	// ErrAuthUnavailable signals a store timeout or outage. It is retryable and
	// must never be interpreted as success or failure of the credential check.
	ErrAuthUnavailable = errors.New("authentication temporarily unavailable")
	// ErrVersionConflict reports a lost conditional write on the account's
	// failure state; callers re-read and retry.
	ErrVersionConflict = errors.New("account version conflict")
	ErrAccountDisabled = errors.New("account disabled")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
)
