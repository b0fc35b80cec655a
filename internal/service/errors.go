package service

import (
	"errors"
	"strings"
)

// ErrorKind classifies a failure for the request layer. Policy and not-found
// errors are recoverable by the caller; invariant violations are not.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindInvalidState       ErrorKind = "invalid_state"
	KindPolicyViolation    ErrorKind = "policy_violation"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindForbidden          ErrorKind = "forbidden"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindInternal           ErrorKind = "internal"
)

var (
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrForbidden       = errors.New("operation not permitted")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserSuspended   = errors.New("user suspended")
	ErrLootboxNotFound = errors.New("lootbox not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrDrawNotFound    = errors.New("draw not found")

	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrLevelRequirementNotMet      = errors.New("level requirement not met")
	ErrDepositRequirementNotMet    = errors.New("deposit requirement not met")
	ErrInventoryNotFound           = errors.New("inventory entry not found")
	ErrAlreadyWithdrawn            = errors.New("item already withdrawn")
	ErrWithdrawalPending           = errors.New("withdrawal already pending")
	ErrInventoryExchanged          = errors.New("item was exchanged")
	ErrWithdrawalNotFound          = errors.New("withdrawal not found")
	ErrWithdrawalNotPendingManual  = errors.New("withdrawal is not pending manual processing")
	ErrItemsNotAvailable           = errors.New("items not available for exchange")
	ErrExchangeNotPossible         = errors.New("exchange value too low")
	ErrInvalidCoupon               = errors.New("invalid coupon")
	ErrCouponExpired               = errors.New("coupon expired")
	ErrCouponLimitReached          = errors.New("coupon usage limit reached")
	ErrCouponAlreadyUsed           = errors.New("coupon already used")
	ErrCouponCodeTaken             = errors.New("coupon code already exists")
	ErrDepositNotFound             = errors.New("deposit not found")
	ErrDepositNotPending           = errors.New("deposit is not pending")
	ErrUnsupportedCurrency         = errors.New("unsupported currency")
	ErrDepositBelowMinimum         = errors.New("deposit below minimum")
	ErrNoCandidateSelected         = errors.New("weighted selection produced no candidate")
	ErrActivationCodeDoubleClaim   = errors.New("activation code already claimed")
	ErrActivationCodeUsed          = errors.New("activation code already used")
	ErrSettlementCounterMismatch   = errors.New("settlement affected an unexpected number of rows")
	ErrFairnessSecretNotConfigured = errors.New("fairness secret is not configured")
	ErrSelfSuspendForbidden        = errors.New("operator cannot suspend self")
	ErrInvalidBindCode             = errors.New("invalid telegram bind code")
	ErrTelegramChatInUse           = errors.New("telegram chat already linked")
	ErrInvalidAuditRange           = errors.New("invalid audit time range")
	ErrTicketNotFound              = errors.New("ticket not found")
	ErrTicketClosed                = errors.New("ticket already closed")
	ErrTooManyOpenTickets          = errors.New("too many open tickets")
)

// Error carries a taxonomy kind and caller-facing details around a sentinel.
// errors.Is matches the wrapped sentinel.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind ErrorKind, sentinel error, details map[string]any) *Error {
	message := ""
	if sentinel != nil {
		message = sentinel.Error()
	}
	return &Error{
		Kind:    kind,
		Code:    codeFromMessage(message),
		Message: message,
		Details: details,
		Err:     sentinel,
	}
}

func notFound(sentinel error) error {
	return newError(KindNotFound, sentinel, nil)
}

func invalidState(sentinel error, details map[string]any) error {
	return newError(KindInvalidState, sentinel, details)
}

func policyViolation(sentinel error, details map[string]any) error {
	return newError(KindPolicyViolation, sentinel, details)
}

func forbidden() error {
	return newError(KindForbidden, ErrForbidden, nil)
}

func invalidInput(sentinel error, reason string) error {
	e := newError(KindInvalidInput, sentinel, nil)
	if reason != "" {
		e.Details = map[string]any{"reason": reason}
	}
	return e
}

// invariantViolation wraps cause so both the sentinel and the underlying
// error stay matchable.
func invariantViolation(sentinel error, cause error, details map[string]any) error {
	e := newError(KindInvariantViolation, sentinel, details)
	if cause != nil && !errors.Is(cause, sentinel) {
		e.Err = errors.Join(sentinel, cause)
	}
	return e
}

// KindOf returns the taxonomy kind of err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

func DetailsOf(err error) map[string]any {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Details
	}
	return nil
}

func codeFromMessage(message string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(message), " ", "_"))
}
