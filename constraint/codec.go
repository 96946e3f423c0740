package constraint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRaw is returned by Decode when a raw constraint string does
// not follow the $-delimited layout.
var ErrMalformedRaw = errors.New("malformed raw constraint")

// The raw layout is the legacy directory attribute encoding:
//
//	name$timeout$beginTime$endTime$beginDate$endDate$beginLockDate$endLockDate$dayMask$maxActivations
//
// Times are HHMM, dates are YYYYMMDD, the day mask is a digit string where
// 1 is Sunday through 7 Saturday. An empty field or the literal "none"
// leaves the dimension unset. The trailing maxActivations field is optional
// so nine-field strings written by older deployments still decode.
const (
	rawFieldCount       = 9
	rawFieldCountWithAx = 10

	rawDateLayout = "20060102"
	rawUnset      = "none"
)

// Encode renders the constraint in the raw $-delimited storage form.
// Engine code never calls this; it exists for store implementations.
func Encode(c Constraint) string {
	fields := []string{
		c.Name,
		encodeInt(c.TimeoutMinutes),
		encodeTime(c.BeginTime, c.BeginTime != 0 || c.EndTime != 0),
		encodeTime(c.EndTime, c.BeginTime != 0 || c.EndTime != 0),
		encodeDate(c.BeginDate),
		encodeDate(c.EndDate),
		encodeDate(c.BeginLockDate),
		encodeDate(c.EndLockDate),
		encodeDayMask(c.DayMask),
		encodeInt(c.MaxActivations),
	}
	return strings.Join(fields, "$")
}

// Decode parses a raw $-delimited constraint string. The reverse of
// [Encode]; any field errors surface wrapped in [ErrMalformedRaw].
func Decode(raw string) (Constraint, error) {
	fields := strings.Split(raw, "$")
	if len(fields) != rawFieldCount && len(fields) != rawFieldCountWithAx {
		return Constraint{}, fmt.Errorf("%w: expected %d or %d fields, got %d",
			ErrMalformedRaw, rawFieldCount, rawFieldCountWithAx, len(fields))
	}

	var c Constraint
	var err error

	c.Name = fields[0]
	if c.TimeoutMinutes, err = decodeInt(fields[1]); err != nil {
		return Constraint{}, fmt.Errorf("%w: timeout: %v", ErrMalformedRaw, err)
	}
	if c.BeginTime, err = decodeTime(fields[2]); err != nil {
		return Constraint{}, fmt.Errorf("%w: beginTime: %v", ErrMalformedRaw, err)
	}
	if c.EndTime, err = decodeTime(fields[3]); err != nil {
		return Constraint{}, fmt.Errorf("%w: endTime: %v", ErrMalformedRaw, err)
	}
	if c.BeginDate, err = decodeDate(fields[4]); err != nil {
		return Constraint{}, fmt.Errorf("%w: beginDate: %v", ErrMalformedRaw, err)
	}
	if c.EndDate, err = decodeDate(fields[5]); err != nil {
		return Constraint{}, fmt.Errorf("%w: endDate: %v", ErrMalformedRaw, err)
	}
	if c.BeginLockDate, err = decodeDate(fields[6]); err != nil {
		return Constraint{}, fmt.Errorf("%w: beginLockDate: %v", ErrMalformedRaw, err)
	}
	if c.EndLockDate, err = decodeDate(fields[7]); err != nil {
		return Constraint{}, fmt.Errorf("%w: endLockDate: %v", ErrMalformedRaw, err)
	}
	if c.DayMask, err = decodeDayMask(fields[8]); err != nil {
		return Constraint{}, fmt.Errorf("%w: dayMask: %v", ErrMalformedRaw, err)
	}
	if len(fields) == rawFieldCountWithAx {
		if c.MaxActivations, err = decodeInt(fields[9]); err != nil {
			return Constraint{}, fmt.Errorf("%w: maxActivations: %v", ErrMalformedRaw, err)
		}
	}

	return c, nil
}

func encodeInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func decodeInt(s string) (int, error) {
	if s == "" || s == rawUnset {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("negative value")
	}
	return v, nil
}

func encodeTime(minute int, set bool) string {
	if !set {
		return ""
	}
	return fmt.Sprintf("%02d%02d", minute/60, minute%60)
}

func decodeTime(s string) (int, error) {
	if s == "" || s == rawUnset {
		return 0, nil
	}
	if len(s) != 4 {
		return 0, errors.New("expected HHMM")
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(s[2:])
	if err != nil {
		return 0, err
	}
	if h < 0 || m < 0 || h > 23 || m > 59 {
		return 0, errors.New("time out of range")
	}
	return h*60 + m, nil
}

func encodeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(rawDateLayout)
}

func decodeDate(s string) (time.Time, error) {
	if s == "" || s == rawUnset {
		return time.Time{}, nil
	}
	return time.Parse(rawDateLayout, s)
}

func encodeDayMask(m DayMask) string {
	if m == 0 || m == AllDays {
		return ""
	}
	var b strings.Builder
	for d := time.Sunday; d <= time.Saturday; d++ {
		if m.Contains(d) {
			b.WriteByte(byte('1' + int(d)))
		}
	}
	return b.String()
}

func decodeDayMask(s string) (DayMask, error) {
	if s == "" || s == rawUnset {
		return 0, nil
	}
	var m DayMask
	for i := 0; i < len(s); i++ {
		d := s[i]
		if d < '1' || d > '7' {
			return 0, errors.New("day digit out of range")
		}
		m |= 1 << uint(d-'1')
	}
	return m, nil
}
