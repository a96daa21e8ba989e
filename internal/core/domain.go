package core

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Supported ISO 4217 currency codes. Amounts in different currencies are
// never summed together; the set is closed so that an unknown code is
// rejected at ingestion instead of silently becoming a new grouping key.
const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
	CAD Currency = "CAD"
	RUB Currency = "RUB"
)

type (
	Currency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// CategoryRecord is a flat category row as stored, scoped to one owner.
	// ParentID is a lookup key into the same snapshot, never a pointer;
	// TreeBuilder resolves it when linking the forest.
	CategoryRecord struct {
		ID          int64
		Name        string
		Description string
		ParentID    *int64
	}

	// ExpenseRecord is an immutable expense snapshot handed to the
	// aggregation engine. Currency is validated at ingestion.
	ExpenseRecord struct {
		ID         int64
		Amount     Money
		Currency   Currency
		CategoryID int64
		Date       Date
		Note       string
	}
)

var supportedCurrencies = map[Currency]struct{}{
	EUR: {}, USD: {}, GBP: {}, CHF: {}, JPY: {}, CAD: {}, RUB: {},
}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyName        = errors.New("empty category name")
	ErrNameTooLong      = errors.New("category name too long (max 100 characters)")
	ErrNoteTooLong      = errors.New("note too long (max 500 characters)")
	ErrInvalidDate      = errors.New("invalid date")
	ErrMissingCategory  = errors.New("missing category reference")
)

// ParseCurrency normalizes and validates a currency code against the
// supported set.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := supportedCurrencies[c]; !ok {
		return "", ErrUnsupportedCurrency
	}
	return c, nil
}

// Supported reports whether the currency is part of the closed set.
func (c Currency) Supported() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

// SupportedCurrencies returns the closed currency set in lexicographic order.
func SupportedCurrencies() []Currency {
	out := make([]Currency, 0, len(supportedCurrencies))
	for c := range supportedCurrencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewDate creates a calendar date (UTC midnight).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the current calendar date in UTC.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Within reports whether d falls inside [start, end], bounds inclusive.
func (d Date) Within(start, end Date) bool {
	return !d.Before(start.Time) && !d.After(end.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r CategoryRecord) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(r.Name) > 100 {
		return ErrNameTooLong
	}
	if len(r.Description) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

func (e ExpenseRecord) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Currency.Supported() {
		return ErrUnsupportedCurrency
	}
	if e.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}
