package domain

import (
	"fmt"
	"time"
)

// DeltaInterval is a named recurring cadence. Each value carries both the
// cron expression used to arm the trigger and the minute count used for
// window arithmetic, so the two can never drift apart.
type DeltaInterval string

const (
	Every2Minutes  DeltaInterval = "EVERY_2_MINUTES"
	Every5Minutes  DeltaInterval = "EVERY_5_MINUTES"
	Every15Minutes DeltaInterval = "EVERY_15_MINUTES"
	Every30Minutes DeltaInterval = "EVERY_30_MINUTES"
	EveryHour      DeltaInterval = "EVERY_HOUR"
	Every2Hours    DeltaInterval = "EVERY_2_HOURS"
	Every6Hours    DeltaInterval = "EVERY_6_HOURS"
	Every12Hours   DeltaInterval = "EVERY_12_HOURS"
)

type intervalSpec struct {
	cron    string // six-field expression, seconds first
	minutes int
}

var intervalSpecs = map[DeltaInterval]intervalSpec{
	Every2Minutes:  {"0 */2 * * * *", 2},
	Every5Minutes:  {"0 */5 * * * *", 5},
	Every15Minutes: {"0 */15 * * * *", 15},
	Every30Minutes: {"0 */30 * * * *", 30},
	EveryHour:      {"0 0 * * * *", 60},
	Every2Hours:    {"0 0 */2 * * *", 120},
	Every6Hours:    {"0 0 */6 * * *", 360},
	Every12Hours:   {"0 0 */12 * * *", 720},
}

// Intervals returns all supported cadences in ascending order.
func Intervals() []DeltaInterval {
	return []DeltaInterval{
		Every2Minutes, Every5Minutes, Every15Minutes, Every30Minutes,
		EveryHour, Every2Hours, Every6Hours, Every12Hours,
	}
}

// ParseInterval maps a cadence name to its DeltaInterval.
func ParseInterval(s string) (DeltaInterval, error) {
	i := DeltaInterval(s)
	if _, ok := intervalSpecs[i]; !ok {
		return "", fmt.Errorf("unknown delta interval %q", s)
	}
	return i, nil
}

// Valid reports whether the interval is one of the supported cadences.
func (i DeltaInterval) Valid() bool {
	_, ok := intervalSpecs[i]
	return ok
}

// CronExpression returns the trigger expression for the interval.
func (i DeltaInterval) CronExpression() string {
	return intervalSpecs[i].cron
}

// Minutes returns the interval length used for window arithmetic.
func (i DeltaInterval) Minutes() int {
	return intervalSpecs[i].minutes
}

// Duration returns the interval length as a time.Duration.
func (i DeltaInterval) Duration() time.Duration {
	return time.Duration(intervalSpecs[i].minutes) * time.Minute
}
