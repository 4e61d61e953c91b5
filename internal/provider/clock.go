package provider

import (
	"context"
	"time"
)

var weekdays = map[int]string{
	0: "Sunday",
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
}

// Clock publishes the local time of day.
type Clock struct {
	name string
	now  func() time.Time
	loc  *time.Location
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithNow replaces the time source.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// WithClockLocation publishes times in loc instead of the local zone.
func WithClockLocation(loc *time.Location) ClockOption {
	return func(c *Clock) { c.loc = loc }
}

// NewClock creates a clock source named name.
func NewClock(name string, opts ...ClockOption) *Clock {
	c := &Clock{name: name, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clock) Name() string { return c.name }

func (c *Clock) Fields() []Field {
	read := func(fn func(t time.Time) any) func(context.Context) (any, error) {
		return func(context.Context) (any, error) { return fn(c.now().In(c.loc)), nil }
	}
	return []Field{
		{Token: "Hour", Read: read(func(t time.Time) any { return t.Hour() })},
		{Token: "Minute", Read: read(func(t time.Time) any { return t.Minute() })},
		{Token: "DayOfYear", Read: read(func(t time.Time) any { return t.YearDay() })},
		{Token: "Weekday", Constants: weekdays, Read: read(func(t time.Time) any { return int(t.Weekday()) })},
		{Token: "Unix", Hidden: true, Read: read(func(t time.Time) any { return t.Unix() })},
	}
}
