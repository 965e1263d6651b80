package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// MaxDescriptionLength caps a training description, in characters.
const MaxDescriptionLength = 200

type (
	// Date is a calendar day in UTC. The time component is always midnight.
	Date struct {
		time.Time
	}

	// Transaction is a single expense read from a user's ledger.
	Transaction struct {
		OwnerID     string
		Amount      Money
		Date        Date
		Description string
		Category    string
	}

	// LabeledExample is one row of the category training corpus.
	LabeledExample struct {
		ID                    int64
		Description           string
		NormalizedDescription string
		Category              string
		CreatedAt             time.Time
	}

	// DailyAmount is a dated amount in a forecast.
	DailyAmount struct {
		Date   Date
		Amount float64
	}

	// ForecastSnapshot is a persisted forecast for one owner.
	ForecastSnapshot struct {
		ID                int64
		OwnerID           string
		CreatedAt         time.Time
		Model             string
		FitError          string
		HorizonTotal      float64
		PerDay            []DailyAmount
		PerCategoryTotals map[string]Money
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping the wall-clock date of t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the fields required for a row to be used as training data.
func (e LabeledExample) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}
