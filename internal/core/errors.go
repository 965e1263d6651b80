package core

import "errors"

// Validation errors.
var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyOwner         = errors.New("empty owner id")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
)

// Data availability errors.
var (
	ErrCorpusUnavailable = errors.New("training corpus unavailable")
	ErrCorpusMalformed   = errors.New("training corpus malformed")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

var (
	// ErrInsufficientData is an outcome: the ledger does not hold enough history to forecast.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrSnapshotNotFound is returned when an owner has no stored forecast.
	ErrSnapshotNotFound = errors.New("forecast snapshot not found")
	// ErrModelFailure covers unexpected failures while training or running a model.
	ErrModelFailure = errors.New("model failure")
	// ErrExportFailed means a forecast was stored but could not be exported.
	ErrExportFailed = errors.New("forecast export failed")
)

// IsValidation reports whether err is caused by invalid caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyDescription, ErrDescriptionTooLong, ErrEmptyCategory,
		ErrEmptyOwner, ErrInvalidAmount, ErrInvalidDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsDataAvailability reports whether err means a backing data source is missing or unusable.
func IsDataAvailability(err error) bool {
	return errors.Is(err, ErrCorpusUnavailable) ||
		errors.Is(err, ErrCorpusMalformed) ||
		errors.Is(err, ErrLedgerUnavailable)
}

// InsufficientDataError carries how much history was required and found.
type InsufficientDataError struct {
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return "insufficient data"
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
