// Package cronexpr parses 5-field cron expressions and computes fire times.
// It wraps robfig/cron/v3 for the Next() arithmetic (union dom/dow semantics,
// */step, ranges, lists) and adds the describe/validation surface §4.1 asks
// for, which robfig/cron does not provide.
package cronexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Expr is a parsed 5-field cron expression.
type Expr struct {
	raw   string
	sched cron.Schedule
}

// Parse validates a 5-field "minute hour dom month dow" expression.
func Parse(expr string) (*Expr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: %q must have exactly 5 fields", ErrInvalidExpression, expr)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &Expr{raw: expr, sched: sched}, nil
}

// Next returns the smallest instant t' >= t at which the expression fires,
// in UTC, second-precision. Idempotent and monotone by construction: it
// delegates to robfig/cron's Schedule.Next, which guarantees strictly-after
// semantics, so we special-case only the t'==t boundary.
func (e *Expr) Next(t time.Time) time.Time {
	t = t.UTC().Truncate(time.Second)
	// cron.Schedule.Next(t) returns the first fire strictly after t. If t
	// itself is exactly on a boundary we want it returned, so probe one
	// second earlier first.
	candidate := e.sched.Next(t.Add(-time.Second))
	return candidate.UTC()
}

func (e *Expr) String() string { return e.raw }

var ErrInvalidExpression = fmt.Errorf("invalid cron expression")

// wellKnown maps common expressions to a human description. Anything not
// listed here yields ("", false) and the caller should show "Custom schedule".
var wellKnown = map[string]string{
	"* * * * *":     "Every minute",
	"*/5 * * * *":    "Every 5 minutes",
	"*/10 * * * *":   "Every 10 minutes",
	"*/15 * * * *":   "Every 15 minutes",
	"*/30 * * * *":   "Every 30 minutes",
	"0 * * * *":      "Every hour",
	"0 */6 * * *":    "Every 6 hours",
	"0 */12 * * *":   "Every 12 hours",
	"0 0 * * *":      "Every day at midnight",
	"0 0 * * 0":      "Every Sunday at midnight",
	"0 0 * * 1":      "Every Monday at midnight",
	"0 0 1 * *":      "On the first of every month",
	"0 9 * * 1-5":    "Every weekday at 9am",
}

// Describe returns a human-readable description for a subset of well-known
// patterns. ok is false for anything not in that subset; callers substitute
// "Custom schedule" in that case, per §4.1.
func Describe(expr string) (description string, ok bool) {
	d, ok := wellKnown[strings.Join(strings.Fields(expr), " ")]
	return d, ok
}
