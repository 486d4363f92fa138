package cron

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// ErrParse matches every error returned by Parse.
var ErrParse = errors.New("cron: invalid expression")

// ParseError describes why an expression was rejected.
type ParseError struct {
	Expr   string
	Field  string // empty when the error is not specific to a field
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron: %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("cron: %q: %s field: %s", e.Expr, e.Field, e.Reason)
}

// Is reports ErrParse so callers can use errors.Is.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Field is one parsed cron field: either "any" or an explicit, non-empty
// set of values within the field's bounds.
type Field struct {
	any    bool
	values uint64
}

// Any reports whether the field was * (or ? where allowed).
func (f Field) Any() bool { return f.any }

// Has reports whether value satisfies the field.
func (f Field) Has(value int) bool {
	if f.any {
		return true
	}
	if value < 0 || value > 63 {
		return false
	}
	return f.values&(1<<uint(value)) != 0
}

// Values returns the explicit values in ascending order, or nil for an
// unrestricted field.
func (f Field) Values() []int {
	if f.any {
		return nil
	}
	out := make([]int, 0, bits.OnesCount64(f.values))
	for v := 0; v < 64; v++ {
		if f.values&(1<<uint(v)) != 0 {
			out = append(out, v)
		}
	}
	return out
}

// Expression is an immutable parsed cron expression.
type Expression struct {
	raw string

	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field
}

// String returns the expression as it was given to Parse.
func (e *Expression) String() string { return e.raw }

// bounds describes the accepted values of one field.
type bounds struct {
	name     string
	min, max int
	// rawMax is the largest literal accepted before transform runs.
	rawMax    int
	names     map[string]int
	question  bool
	transform func(int) int
}

func (b bounds) apply(v int) int {
	if b.transform == nil {
		return v
	}
	return b.transform(v)
}

var (
	minuteBounds = bounds{name: "minute", min: 0, max: 59, rawMax: 59}
	hourBounds   = bounds{name: "hour", min: 0, max: 23, rawMax: 23}
	domBounds    = bounds{name: "day-of-month", min: 1, max: 31, rawMax: 31, question: true}
	monthBounds  = bounds{name: "month", min: 1, max: 12, rawMax: 12, names: map[string]int{
		"jan": 1,
		"feb": 2,
		"mar": 3,
		"apr": 4,
		"may": 5,
		"jun": 6,
		"jul": 7,
		"aug": 8,
		"sep": 9,
		"oct": 10,
		"nov": 11,
		"dec": 12,
	}}
	dowBounds = bounds{name: "day-of-week", min: 0, max: 6, rawMax: 7, question: true, names: map[string]int{
		"sun": 0,
		"mon": 1,
		"tue": 2,
		"wed": 3,
		"thu": 4,
		"fri": 5,
		"sat": 6,
	}, transform: foldSunday}
)

// foldSunday maps the day-of-week alias 7 onto 0.
func foldSunday(v int) int {
	if v == 7 {
		return 0
	}
	return v
}

// Parse parses a 5-field cron expression. Runs of whitespace between
// fields are collapsed. The returned error matches ErrParse.
func Parse(expression string) (*Expression, error) {
	fields := strings.Fields(expression)
	if len(fields) == 0 {
		return nil, &ParseError{Expr: expression, Reason: "expression is empty"}
	}
	if len(fields) != 5 {
		return nil, &ParseError{Expr: expression, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
	}

	all := [5]bounds{minuteBounds, hourBounds, domBounds, monthBounds, dowBounds}
	var parsed [5]Field
	for i, b := range all {
		f, err := parseField(fields[i], b)
		if err != nil {
			return nil, &ParseError{Expr: expression, Field: b.name, Reason: err.Error()}
		}
		parsed[i] = f
	}

	return &Expression{
		raw:        expression,
		Minute:     parsed[0],
		Hour:       parsed[1],
		DayOfMonth: parsed[2],
		Month:      parsed[3],
		DayOfWeek:  parsed[4],
	}, nil
}

// Validate reports whether expression parses.
func Validate(expression string) bool {
	_, err := Parse(expression)
	return err == nil
}

// parseField parses a comma-separated list of segments.
func parseField(field string, b bounds) (Field, error) {
	raw := strings.ToLower(strings.TrimSpace(field))
	if raw == "" {
		return Field{}, errors.New("field is empty")
	}
	if raw == "*" || (b.question && raw == "?") {
		return Field{any: true}, nil
	}

	var values uint64
	for _, segment := range strings.Split(raw, ",") {
		set, err := parseSegment(strings.TrimSpace(segment), b)
		if err != nil {
			return Field{}, err
		}
		values |= set
	}
	if values == 0 {
		return Field{}, fmt.Errorf("%q does not resolve to any value", field)
	}
	return Field{values: values}, nil
}

// parseSegment parses one of: *, V, V-V, each optionally followed by /N.
// A step on a single value is validated but has no effect.
func parseSegment(segment string, b bounds) (uint64, error) {
	if segment == "" {
		return 0, errors.New("empty segment")
	}

	base := segment
	step := 1
	if before, after, ok := strings.Cut(segment, "/"); ok {
		if after == "" {
			return 0, fmt.Errorf("missing step in %q", segment)
		}
		n, err := strconv.Atoi(after)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("step must be a positive integer in %q", segment)
		}
		base, step = before, n
	}

	if base == "" || base == "*" {
		return fill(b.min, b.max, step, b), nil
	}

	if startRaw, endRaw, ok := strings.Cut(base, "-"); ok {
		start, err := resolveRaw(startRaw, b)
		if err != nil {
			return 0, err
		}
		end, err := resolveRaw(endRaw, b)
		if err != nil {
			return 0, err
		}
		if end < start {
			return 0, fmt.Errorf("range %q must be ascending", base)
		}
		return fill(start, end, step, b), nil
	}

	v, err := resolveRaw(base, b)
	if err != nil {
		return 0, err
	}
	return 1 << uint(b.apply(v)), nil
}

// resolveRaw turns a token into its literal value (alias or integer) and
// checks it against the field bounds. The transform is not applied so
// that ranges like 5-7 on day-of-week stay ascending.
func resolveRaw(token string, b bounds) (int, error) {
	token = strings.TrimSpace(token)
	v, ok := b.names[token]
	if !ok {
		n, err := strconv.Atoi(token)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", token)
		}
		v = n
	}
	if v < b.min || v > b.rawMax {
		return 0, fmt.Errorf("value %q out of range [%d-%d]", token, b.min, b.max)
	}
	if t := b.apply(v); t < b.min || t > b.max {
		return 0, fmt.Errorf("value %q out of range [%d-%d]", token, b.min, b.max)
	}
	return v, nil
}

// fill sets start, start+step, ... up to end, transforming each value.
func fill(start, end, step int, b bounds) uint64 {
	var set uint64
	for v := start; v <= end; v += step {
		set |= 1 << uint(b.apply(v))
	}
	return set
}
