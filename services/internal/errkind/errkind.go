// Package errkind holds the stable error kinds returned by the affiliate
// services. Every kind is a sentinel (match with errors.Is) and is rendered to
// callers as an errutil.BaseError whose Reason is the kind name.
package errkind

import (
	"errors"

	"smallbiznis-affiliate/pkg/errutil"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnknownAffiliate      = errors.New("unknown affiliate")
	ErrDuplicateConversion   = errors.New("duplicate conversion")
	ErrAlreadyProcessed      = errors.New("conversion already processed")
	ErrReferralCycleDetected = errors.New("referral cycle detected")
	ErrStorageFailure        = errors.New("storage failure")

	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateEntry      = errors.New("duplicate ledger entry")
)

const (
	ReasonInvalidAmount         = "INVALID_AMOUNT"
	ReasonUnknownAffiliate      = "UNKNOWN_AFFILIATE"
	ReasonDuplicateConversion   = "DUPLICATE_CONVERSION"
	ReasonAlreadyProcessed      = "ALREADY_PROCESSED"
	ReasonReferralCycleDetected = "REFERRAL_CYCLE_DETECTED"
	ReasonStorageFailure        = "STORAGE_FAILURE"
	ReasonNotFound              = "NOT_FOUND"
	ReasonInvalidArgument       = "INVALID_ARGUMENT"
	ReasonInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ReasonDuplicateEntry        = "DUPLICATE_ENTRY"
)

func InvalidAmount(msg string) error {
	return errutil.BadRequest(msg, ErrInvalidAmount, errutil.WithReason(ReasonInvalidAmount))
}

func InvalidArgument(msg string, details ...errutil.Detail) error {
	return errutil.BadRequest(msg, ErrInvalidArgument, errutil.WithReason(ReasonInvalidArgument), errutil.WithDetails(details...))
}

func UnknownAffiliate(msg string) error {
	return errutil.NotFound(msg, ErrUnknownAffiliate, errutil.WithReason(ReasonUnknownAffiliate))
}

func NotFound(msg string) error {
	return errutil.NotFound(msg, ErrNotFound, errutil.WithReason(ReasonNotFound))
}

func DuplicateConversion(msg string) error {
	return errutil.Conflict(msg, ErrDuplicateConversion, errutil.WithReason(ReasonDuplicateConversion))
}

func DuplicateEntry(msg string) error {
	return errutil.Conflict(msg, ErrDuplicateEntry, errutil.WithReason(ReasonDuplicateEntry))
}

func AlreadyProcessed(msg string) error {
	return errutil.Conflict(msg, ErrAlreadyProcessed, errutil.WithReason(ReasonAlreadyProcessed))
}

func ReferralCycleDetected(msg string) error {
	return errutil.UnprocessableEntity(msg, ErrReferralCycleDetected, errutil.WithReason(ReasonReferralCycleDetected))
}

func InsufficientBalance(msg string) error {
	return errutil.UnprocessableEntity(msg, ErrInsufficientBalance, errutil.WithReason(ReasonInsufficientBalance))
}

// StorageFailure wraps a persistence error. Errors that already carry a kind
// pass through untouched so a rollback never hides the original cause.
func StorageFailure(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errutil.As(err); ok {
		return err
	}
	return errutil.Internal("storage failure", errors.Join(ErrStorageFailure, err), errutil.WithReason(ReasonStorageFailure))
}

// Terminal reports whether retrying the same input can never succeed.
func Terminal(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownAffiliate) ||
		errors.Is(err, ErrDuplicateConversion) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrReferralCycleDetected) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound)
}
