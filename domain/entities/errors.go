package entities

import (
	"errors"
	"fmt"

	"github.com/basedgoydev/greed-farm/domain/safemath"
)

// ErrorKind classifies failures so callers can decide between rejecting,
// degrading, treating as idempotent, or aborting.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindExternalUnavailable ErrorKind = "external_unavailable"
	KindArithmetic          ErrorKind = "arithmetic"
	KindInternal            ErrorKind = "internal"
)

// Error is a user-facing failure with a stable reason code.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so a sentinel wrapped with
// extra context still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of the sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of the sentinel with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation
var (
	ErrInvalidRiskPercent   = newError(KindValidation, "invalid_risk_percent", "risk percentage must be 25, 50 or 100")
	ErrClientSeedTooShort   = newError(KindValidation, "client_seed_too_short", "client seed is too short")
	ErrClientSeedTooLong    = newError(KindValidation, "client_seed_too_long", "client seed is too long")
	ErrInvalidWallet        = newError(KindValidation, "invalid_wallet", "wallet address is malformed")
	ErrInvalidCommitmentID  = newError(KindValidation, "invalid_commitment_id", "commitment id is malformed")
	ErrInvalidAmount        = newError(KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrNothingToRisk        = newError(KindValidation, "nothing_to_risk", "no claimable balance to wager")
	ErrNothingToClaim       = newError(KindValidation, "nothing_to_claim", "no claimable balance")
	ErrCommitmentExpired    = newError(KindValidation, "commitment_expired", "commitment has expired")
	ErrCommitmentForeign    = newError(KindValidation, "commitment_foreign", "commitment belongs to another wallet")
	ErrNotBootstrapped      = newError(KindValidation, "not_bootstrapped", "protocol state has not been bootstrapped")
)

// Not found
var (
	ErrUserNotFound       = newError(KindNotFound, "user_not_found", "user not found")
	ErrCommitmentNotFound = newError(KindNotFound, "commitment_not_found", "commitment not found")
	ErrEpochNotFound      = newError(KindNotFound, "epoch_not_found", "epoch not found")
	ErrWagerNotFound      = newError(KindNotFound, "wager_not_found", "wager not found")
	ErrNoActiveStake      = newError(KindNotFound, "no_active_stake", "no active stake")
)

// Conflict
var (
	ErrCommitmentConsumed = newError(KindConflict, "commitment_consumed", "commitment already consumed")
	ErrAlreadyDistributed = newError(KindConflict, "already_distributed", "reward already distributed for this epoch")
	ErrStaleGlobalState   = newError(KindConflict, "stale_global_state", "global state was modified concurrently")
	ErrTickInProgress     = newError(KindConflict, "tick_in_progress", "an epoch tick is already running")
	ErrMixedStakeSource   = newError(KindConflict, "mixed_stake_source", "wallet already has a registry stake")
)

// External
var (
	ErrExternalUnavailable = newError(KindExternalUnavailable, "external_unavailable", "external service unavailable")
)

// NewExternalUnavailable wraps an adapter failure.
func NewExternalUnavailable(operation string, cause error) *Error {
	return &Error{
		Kind:    KindExternalUnavailable,
		Code:    ErrExternalUnavailable.Code,
		Message: fmt.Sprintf("%s unavailable", operation),
		Err:     cause,
	}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, safemath.ErrOverflow) {
		return KindArithmetic
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Reason returns the code and text that may be shown to a caller. Internal
// failures are reported generically.
func Reason(err error) (code, message string) {
	switch KindOf(err) {
	case "":
		return "", ""
	case KindArithmetic:
		return "arithmetic_overflow", "amount out of range"
	case KindInternal:
		return "internal", "internal error"
	}
	var e *Error
	errors.As(err, &e)
	return e.Code, e.Message
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
