// Package constraint implements the temporal constraint evaluator.
//
// A [Constraint] bounds when a user session or a role activation is valid:
// calendar date range, lockout date range, time-of-day window, day-of-week
// mask, inactivity timeout, and a ceiling on simultaneous activations.
// [Evaluate] is a pure function over a constraint, a clock reading, and
// caller-supplied usage state; it never touches shared state and always
// returns the first failing dimension in a fixed order.
//
// The $-delimited raw encoding handled by [Decode] and [Encode] exists only
// for the storage boundary. Engine code works with typed [Constraint] values
// exclusively.
package constraint
