package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// Schedule is a parsed poll schedule.
//
// Supported forms:
//   - Interval duration: "2m", "90s", "1h30m"
//   - Interval HH:MM: "00:05" (5 minutes), "02:30" (2 hours 30 minutes)
//   - Cron: "*/5 * * * *", "0 */10 * * * *" (seconds field optional), "@hourly", "@every 5m"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type Schedule struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"

	sched cron.Schedule
	loc   *time.Location
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Every returns an interval schedule.
func Every(d time.Duration) Schedule {
	return Schedule{Kind: SpecInterval, Every: d, Source: "duration", sched: intervalSchedule(d)}
}

// ParseSchedule parses raw. Cron expressions are evaluated in loc (local time when nil).
func ParseSchedule(raw string, loc *time.Location) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]), loc)
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSpec(s[len("every:"):])
	}

	// Heuristics:
	// - any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s, loc)
	}

	if reHHMM.MatchString(s) || isDuration(s) {
		return parseIntervalSpec(s)
	}

	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use a duration like '2m', HH:MM like '00:05', or cron like '*/5 * * * *')",
		raw,
	)
}

func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func parseCron(expr string, loc *time.Location) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Schedule{Kind: SpecCron, Cron: expr, Source: "cron", sched: sched, loc: loc}, nil
}

func parseIntervalSpec(v string) (Schedule, error) {
	d, src, err := parseInterval(v)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Kind: SpecInterval, Every: d, Source: src, sched: intervalSchedule(d)}, nil
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '2m'/'1h30m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	// hours up to 999, minutes 0..59
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

// intervalSchedule uses cron's constant delay for whole seconds. cron.Every
// floors to one second, so shorter delays get a plain offset.
func intervalSchedule(d time.Duration) cron.Schedule {
	if d >= time.Second {
		return cron.Every(d)
	}
	return subSecond(d)
}

type subSecond time.Duration

func (s subSecond) Next(t time.Time) time.Time { return t.Add(time.Duration(s)) }

// Next returns the next activation strictly after t. The zero time means the
// schedule never fires again.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		if s.Every > 0 {
			return t.Add(s.Every)
		}
		return time.Time{}
	}
	if s.loc != nil {
		t = t.In(s.loc)
	}
	return s.sched.Next(t)
}

func (s Schedule) String() string {
	if s.Kind == SpecCron {
		return "cron:" + s.Cron
	}
	return "every " + s.Every.String()
}
