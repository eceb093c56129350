package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule runs a job at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronSchedule is a standard 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Examples:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 3 * * *"    - every day at 03:00
//   - "30 2 * * 1-5" - weekdays at 02:30
type CronSchedule struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCron parses a 5-field cron expression. Each field accepts *, n,
// n-m and a /step suffix on * or a range, joined by commas.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseCronField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
	}, nil
}

func parseCronField(field string, spec cronField) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		lo, hi, step := spec.min, spec.max, 1

		rangePart, stepPart, hasStep := strings.Cut(part, "/")
		if hasStep {
			n, err := strconv.Atoi(stepPart)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%s: invalid step %q", spec.name, stepPart)
			}
			step = n
		}

		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			from, to, _ := strings.Cut(rangePart, "-")
			var err error
			if lo, err = strconv.Atoi(from); err != nil {
				return 0, fmt.Errorf("%s: invalid range start %q", spec.name, from)
			}
			if hi, err = strconv.Atoi(to); err != nil {
				return 0, fmt.Errorf("%s: invalid range end %q", spec.name, to)
			}
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return 0, fmt.Errorf("%s: invalid value %q", spec.name, rangePart)
			}
			lo = n
			if hasStep {
				hi = spec.max
			} else {
				hi = n
			}
		}

		if lo < spec.min || hi > spec.max || lo > hi {
			return 0, fmt.Errorf("%s: %q out of range [%d-%d]", spec.name, part, spec.min, spec.max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// Next returns the first matching minute strictly after t, or the zero
// time if none falls within five years.
func (c *CronSchedule) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(c.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(c.days, t.Day()) || !has(c.weekdays, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(c.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(c.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// String returns the original cron expression.
func (c *CronSchedule) String() string {
	return c.raw
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseSchedule accepts "@every <duration>", "@hourly", "@daily" or a cron
// expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid schedule %q: interval must be positive", spec)
		}
		return Every(d), nil
	case spec == "@hourly":
		return ParseCron("0 * * * *")
	case spec == "@daily":
		return ParseCron("0 0 * * *")
	default:
		return ParseCron(spec)
	}
}
