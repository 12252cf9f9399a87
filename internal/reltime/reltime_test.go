package reltime

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []Term
		wantErr bool
	}{
		{
			name: "signed days",
			expr: "+7 days",
			want: []Term{{N: 7, Unit: Day}},
		},
		{
			name: "unsigned singular",
			expr: "1 week",
			want: []Term{{N: 1, Unit: Week}},
		},
		{
			name: "negative hours",
			expr: "-3 hours",
			want: []Term{{N: -3, Unit: Hour}},
		},
		{
			name: "detached sign",
			expr: "+ 10 days",
			want: []Term{{N: 10, Unit: Day}},
		},
		{
			name: "compact number and unit",
			expr: "+36h",
			want: []Term{{N: 36, Unit: Hour}},
		},
		{
			name: "several terms",
			expr: "+1 week 2 days",
			want: []Term{{N: 1, Unit: Week}, {N: 2, Unit: Day}},
		},
		{
			name: "fortnight doubles weeks",
			expr: "+1 fortnight",
			want: []Term{{N: 2, Unit: Week}},
		},
		{
			name: "mixed case",
			expr: "+2 Months",
			want: []Term{{N: 2, Unit: Month}},
		},
		{
			name:    "empty",
			expr:    "   ",
			wantErr: true,
		},
		{
			name:    "missing unit",
			expr:    "+7",
			wantErr: true,
		},
		{
			name:    "unknown unit",
			expr:    "+7 eons",
			wantErr: true,
		},
		{
			name:    "no number",
			expr:    "next week",
			wantErr: true,
		},
		{
			name:    "dangling sign",
			expr:    "+",
			wantErr: true,
		},
		{
			name:    "hours overflow",
			expr:    "+9999999999 hours",
			wantErr: true,
		},
		{
			name:    "years overflow",
			expr:    "+9999999 years",
			wantErr: true,
		},
		{
			name:    "terms overflow together",
			expr:    "+200 years +200 years",
			wantErr: true,
		},
		{
			name:    "fortnights wrap around",
			expr:    "+4611686018427387904 fortnights",
			wantErr: true,
		},
		{
			name: "large but in range",
			expr: "+100 years",
			want: []Term{{N: 100, Unit: Year}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got.Terms())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Terms()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.expr, diff)
			}
		})
	}
}

func TestParseErrorTypes(t *testing.T) {
	if _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}

	_, err := Parse("+7 eons")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if diff := cmp.Diff("+7 eons", pe.Expr); diff != "" {
		t.Errorf("expr mismatch (-want +got):\n%s", diff)
	}

	if _, err := Parse("+9999999999 hours"); !errors.As(err, &pe) {
		t.Errorf("expected *ParseError for an out of range term, got %v", err)
	}
}

func TestOffsetFromAndBefore(t *testing.T) {
	base := time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expr       string
		wantFrom   time.Time
		wantBefore time.Time
	}{
		{
			name:       "days",
			expr:       "+7 days",
			wantFrom:   time.Date(2024, time.February, 7, 12, 0, 0, 0, time.UTC),
			wantBefore: time.Date(2024, time.January, 24, 12, 0, 0, 0, time.UTC),
		},
		{
			name:       "hours",
			expr:       "+36 hours",
			wantFrom:   time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC),
			wantBefore: time.Date(2024, time.January, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "week and day",
			expr:       "+1 week 1 day",
			wantFrom:   time.Date(2024, time.February, 8, 12, 0, 0, 0, time.UTC),
			wantBefore: time.Date(2024, time.January, 23, 12, 0, 0, 0, time.UTC),
		},
		{
			name:       "month normalises like the calendar",
			expr:       "+1 month",
			wantFrom:   time.Date(2024, time.March, 2, 12, 0, 0, 0, time.UTC),
			wantBefore: time.Date(2023, time.December, 31, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := MustParse(tt.expr)
			if diff := cmp.Diff(tt.wantFrom, o.From(base)); diff != "" {
				t.Errorf("From mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantBefore, o.Before(base)); diff != "" {
				t.Errorf("Before mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOffsetHuman(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{expr: "+7 days", want: "7 days"},
		{expr: "10 days", want: "10 days"},
		{expr: " +1 week ", want: "1 week"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, MustParse(tt.expr).Human()); diff != "" {
				t.Errorf("Human() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOffsetUnmarshalText(t *testing.T) {
	var o Offset
	if err := o.UnmarshalText([]byte("+2 weeks")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]Term{{N: 2, Unit: Week}}, o.Terms()); diff != "" {
		t.Errorf("Terms() mismatch (-want +got):\n%s", diff)
	}

	if err := o.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for malformed expression")
	}
}
