package cronexpr_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/cronexpr"
)

func TestParse_InvalidExpression(t *testing.T) {
	cases := []string{"", "* * * *", "60 * * * *", "* * * * * *", "not a cron"}
	for _, c := range cases {
		if _, err := cronexpr.Parse(c); err == nil {
			t.Errorf("Parse(%q) = nil error, want error", c)
		}
	}
}

func TestNext_OnBoundaryReturnsSameInstant(t *testing.T) {
	e, err := cronexpr.Parse("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	got := e.Next(t0)
	if !got.Equal(t0) {
		t.Errorf("Next(%v) = %v, want %v (t' >= t, t already a fire time)", t0, got, t0)
	}
}

func TestNext_AdvancesToNextFire(t *testing.T) {
	e, err := cronexpr.Parse("*/5 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)
	want := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := e.Next(t0); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", t0, got, want)
	}
}

func TestNext_Monotone(t *testing.T) {
	e, err := cronexpr.Parse("0 */6 * * *")
	if err != nil {
		t.Fatal(err)
	}
	a := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)
	if e.Next(a).After(e.Next(b)) {
		t.Errorf("Next not monotone: Next(a)=%v > Next(b)=%v though a<=b", e.Next(a), e.Next(b))
	}
}

func TestNext_DomDowUnion(t *testing.T) {
	// "0 0 1 * MON" fires when dom=1 OR dow=Monday — union semantics.
	e, err := cronexpr.Parse("0 0 1 * 1")
	if err != nil {
		t.Fatal(err)
	}
	// 2026-01-05 is a Monday, not the 1st — should still fire.
	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	got := e.Next(from)
	if got.Weekday() != time.Monday && got.Day() != 1 {
		t.Errorf("Next(%v) = %v, want a Monday or the 1st", from, got)
	}
}

func TestDescribe_WellKnown(t *testing.T) {
	desc, ok := cronexpr.Describe("*/5 * * * *")
	if !ok || desc != "Every 5 minutes" {
		t.Errorf("Describe(*/5 * * * *) = (%q, %v), want (\"Every 5 minutes\", true)", desc, ok)
	}
}

func TestDescribe_Unknown(t *testing.T) {
	if _, ok := cronexpr.Describe("7 13 * * 3"); ok {
		t.Error("Describe on an obscure expression should report ok=false")
	}
}
