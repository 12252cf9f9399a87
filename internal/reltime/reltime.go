// Package reltime parses relative time expressions such as "+7 days" or
// "1 week 2 days" and applies them to timestamps.
package reltime

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrEmpty is returned when the expression contains no terms.
var ErrEmpty = errors.New("empty relative time expression")

// Unit is a calendar or clock unit of a relative offset.
type Unit string

// Supported units.
const (
	Second Unit = "second"
	Minute Unit = "minute"
	Hour   Unit = "hour"
	Day    Unit = "day"
	Week   Unit = "week"
	Month  Unit = "month"
	Year   Unit = "year"
)

var unitAliases = map[string]Unit{
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
	"min": Minute, "mins": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "week": Week, "weeks": Week,
	"fortnight": Week, "fortnights": Week,
	"month": Month, "months": Month,
	"y": Year, "year": Year, "years": Year,
}

// unitLength is the longest span of each unit; calendar units use their
// longest variant so that bounds hold for any starting date.
var unitLength = map[Unit]time.Duration{
	Second: time.Second,
	Minute: time.Minute,
	Hour:   time.Hour,
	Day:    25 * time.Hour,
	Week:   7 * 25 * time.Hour,
	Month:  31 * 25 * time.Hour,
	Year:   366 * 25 * time.Hour,
}

// maxTerm is the largest quantity of u whose span fits in a time.Duration.
func maxTerm(u Unit) int {
	return int(math.MaxInt64 / int64(unitLength[u]))
}

// Term is a single signed quantity of one unit.
type Term struct {
	N    int
	Unit Unit
}

// Offset is a sequence of terms applied left to right.
type Offset struct {
	raw   string
	terms []Term
}

// ParseError describes a malformed expression.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid relative time %q: %s", e.Expr, e.Reason)
}

// Parse reads an expression made of one or more "[+|-]N unit" terms.
// A sign may be attached to the number ("+7 days") or stand alone ("+ 7 days").
// Terms without a sign are positive.
func Parse(expr string) (Offset, error) {
	fields := strings.Fields(strings.ToLower(expr))
	if len(fields) == 0 {
		return Offset{}, ErrEmpty
	}

	var (
		terms []Term
		total time.Duration
	)
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		sign := 1
		switch {
		case tok == "+" || tok == "-":
			if tok == "-" {
				sign = -1
			}
			i++
			if i >= len(fields) {
				return Offset{}, &ParseError{Expr: expr, Reason: "dangling sign"}
			}
			tok = fields[i]
		case strings.HasPrefix(tok, "+"):
			tok = tok[1:]
		case strings.HasPrefix(tok, "-"):
			sign = -1
			tok = tok[1:]
		}

		num, unitStr := splitNumber(tok)
		if num == "" {
			return Offset{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("expected a number, got %q", tok)}
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return Offset{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("bad number %q", num)}
		}
		if unitStr == "" {
			i++
			if i >= len(fields) {
				return Offset{}, &ParseError{Expr: expr, Reason: "missing unit"}
			}
			unitStr = fields[i]
		}
		unit, ok := unitAliases[unitStr]
		if !ok {
			return Offset{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("unknown unit %q", unitStr)}
		}
		if n > maxTerm(unit) {
			return Offset{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("%d %s is out of range", n, unit)}
		}
		if strings.HasPrefix(unitStr, "fortnight") {
			n *= 2
		}
		if n > maxTerm(unit) {
			return Offset{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("%d %s is out of range", n, unit)}
		}
		span := time.Duration(n) * unitLength[unit]
		if total > math.MaxInt64-span {
			return Offset{}, &ParseError{Expr: expr, Reason: "offset is out of range"}
		}
		total += span
		terms = append(terms, Term{N: sign * n, Unit: unit})
	}

	return Offset{raw: strings.TrimSpace(expr), terms: terms}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(expr string) Offset {
	o, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return o
}

func splitNumber(tok string) (string, string) {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	return tok[:i], tok[i:]
}

// UnmarshalText parses text into o, so offsets can be read from configuration.
func (o *Offset) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Terms returns a copy of the parsed terms.
func (o Offset) Terms() []Term {
	out := make([]Term, len(o.terms))
	copy(out, o.terms)
	return out
}

// IsZero reports whether the offset has no terms.
func (o Offset) IsZero() bool {
	return len(o.terms) == 0
}

// From applies the offset to t.
func (o Offset) From(t time.Time) time.Time {
	for _, term := range o.terms {
		t = apply(t, term.N, term.Unit)
	}
	return t
}

// Before returns t moved back by the offset, the mirror of From.
func (o Offset) Before(t time.Time) time.Time {
	for _, term := range o.terms {
		t = apply(t, -term.N, term.Unit)
	}
	return t
}

// String returns the expression as written.
func (o Offset) String() string {
	return o.raw
}

// Human returns the expression without a leading plus sign, e.g. "7 days".
func (o Offset) Human() string {
	return strings.TrimSpace(strings.TrimLeft(o.raw, "+"))
}

func apply(t time.Time, n int, u Unit) time.Time {
	switch u {
	case Second:
		return t.Add(time.Duration(n) * time.Second)
	case Minute:
		return t.Add(time.Duration(n) * time.Minute)
	case Hour:
		return t.Add(time.Duration(n) * time.Hour)
	case Day:
		return t.AddDate(0, 0, n)
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return t.AddDate(0, n, 0)
	case Year:
		return t.AddDate(n, 0, 0)
	}
	return t
}
