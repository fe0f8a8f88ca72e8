package service

import (
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// TimeOfDay is a wall-clock offset from local midnight, in seconds.
type TimeOfDay int

// At returns the TimeOfDay for hh:mm.
func At(hour, minute int) TimeOfDay { return TimeOfDay(hour*3600 + minute*60) }

// TimeOfDayOf returns the wall-clock offset of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(d)/3600, int(d)%3600/60)
}

// Rule is one time window of the multi-segment schedule. Windows are
// inclusive at both ends. A rule with an empty Force matches but leaves
// plain alternation in place.
type Rule struct {
	Name     string
	From, To TimeOfDay
	Weekdays []time.Weekday // empty means every weekday
	Force    types.EventKind
}

// Matches reports whether t falls inside the rule's window and days.
func (r Rule) Matches(t time.Time) bool {
	if !r.onDay(t.Weekday()) {
		return false
	}
	tod := TimeOfDayOf(t)
	return tod >= r.From && tod <= r.To
}

func (r Rule) onDay(d time.Weekday) bool {
	if len(r.Weekdays) == 0 {
		return true
	}
	for _, w := range r.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// Apply returns the kind this rule assigns when the subject's last record
// today was last.
func (r Rule) Apply(last types.EventKind) types.EventKind {
	if r.Force != "" && last != r.Force {
		return r.Force
	}
	return last.Opposite()
}

// Rules is an ordered table; the first matching rule wins.
type Rules []Rule

// Match returns the first rule matching t, or nil.
func (rs Rules) Match(t time.Time) *Rule {
	for i := range rs {
		if rs[i].Matches(t) {
			return &rs[i]
		}
	}
	return nil
}

// workdays returns Monday through last, inclusive. Sunday is never a
// workday.
func workdays(last time.Weekday) []time.Weekday {
	if last < time.Monday || last > time.Saturday {
		last = time.Friday
	}
	var out []time.Weekday
	for d := time.Monday; d <= last; d++ {
		out = append(out, d)
	}
	return out
}

// MultiSegmentRules builds the rule table for subjects whose day is
// split into several segments. lastWeekday closes early.
func MultiSegmentRules(lastWeekday time.Weekday) Rules {
	days := workdays(lastWeekday)
	closing := days[len(days)-1]
	early := days[:len(days)-1]

	return Rules{
		{Name: "morning_arrival", From: At(6, 30), To: At(8, 0), Weekdays: days, Force: types.KindEntry},
		{Name: "break", From: At(9, 15), To: At(10, 15), Weekdays: days},
		{Name: "meal", From: At(12, 20), To: At(14, 0), Weekdays: days},
		{Name: "early_close", From: At(15, 45), To: At(18, 0), Weekdays: []time.Weekday{closing}, Force: types.KindExit},
		{Name: "close", From: At(16, 45), To: At(18, 0), Weekdays: early, Force: types.KindExit},
	}
}

// Checkpoints lists the expected punches of a multi-segment day. Days
// outside the working week have none.
func Checkpoints(day, lastWeekday time.Weekday) []types.Checkpoint {
	days := workdays(lastWeekday)
	if day < days[0] || day > days[len(days)-1] {
		return nil
	}
	leave := At(17, 0)
	if day == days[len(days)-1] {
		leave = At(16, 0)
	}
	return []types.Checkpoint{
		{Label: "arrival", At: At(7, 0).String(), Kind: types.KindEntry},
		{Label: "break_out", At: At(9, 30).String(), Kind: types.KindExit},
		{Label: "break_in", At: At(9, 50).String(), Kind: types.KindEntry},
		{Label: "meal_out", At: At(12, 40).String(), Kind: types.KindExit},
		{Label: "meal_in", At: At(13, 40).String(), Kind: types.KindEntry},
		{Label: "departure", At: leave.String(), Kind: types.KindExit},
	}
}
