package contentieux

import "time"

// =============================================================================
// DATE - Day-granularity point in time
// =============================================================================

// Date is a calendar day in UTC. Affaires, encaissements and mandats all
// operate at day granularity; wall-clock time never matters to the rules.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t.UTC()}, nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date  { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int   { return d.Time.Year() }
func (d Date) IsZero() bool { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// =============================================================================
// PERIODE - Inclusive date range
// =============================================================================

// Periode is an inclusive [Debut, Fin] date range, used for mandate windows.
type Periode struct {
	Debut Date
	Fin   Date
}

// Contains returns true if the date falls within [Debut, Fin].
func (p Periode) Contains(d Date) bool {
	return d.AfterOrEqual(p.Debut) && d.BeforeOrEqual(p.Fin)
}

// Valide reports whether Debut <= Fin.
func (p Periode) Valide() bool {
	return p.Debut.BeforeOrEqual(p.Fin)
}

func (p Periode) String() string {
	return "[" + p.Debut.String() + ", " + p.Fin.String() + "]"
}
