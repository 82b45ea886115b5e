package dateparse

import (
	"testing"
	"time"

	"remindbot/internal/reminders"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func at(y int, m time.Month, d, h, mi int) int64 {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC).Unix()
}

func TestParseSingleClause(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		offset int64
		text   string
		target int64
	}{
		{in: "buy milk in 30 minutes", text: "buy milk", target: now.Add(30 * time.Minute).Unix()},
		{in: "через 2 часа позвонить маме", text: "позвонить маме", target: now.Add(2 * time.Hour).Unix()},
		{in: "in an hour stretch", text: "stretch", target: now.Add(time.Hour).Unix()},
		{in: "через неделю отчёт", text: "отчёт", target: now.AddDate(0, 0, 7).Unix()},
		{in: "standup tomorrow at 10:00", text: "standup", target: at(2026, 5, 5, 10, 0)},
		{in: "standup tomorrow", text: "standup", target: at(2026, 5, 5, DefaultHour, 0)},
		{in: "Завтра в 18:30 встреча", text: "встреча", target: at(2026, 5, 5, 18, 30)},
		{in: "dentist in 2 days at 8:15", text: "dentist", target: at(2026, 5, 6, 8, 15)},
		{in: "remind me to water plants at 19:00", text: "water plants", target: at(2026, 5, 4, 19, 0)},
		{in: "dinner at 7pm", text: "dinner", target: at(2026, 5, 4, 19, 0)},
		{in: "party on 05.06", text: "party", target: at(2026, 6, 5, DefaultHour, 0)},
		{in: "report 01.02.2027 at 10:00", text: "report", target: at(2027, 2, 1, 10, 0)},
		{in: "in 5 minutes", text: "in 5 minutes", target: now.Add(5 * time.Minute).Unix()},
		// 10:00 at UTC+3 has passed, so it rolls to tomorrow
		{in: "call at 10:00", offset: 3 * 3600, text: "call", target: at(2026, 5, 5, 7, 0)},
		{in: "call at 20:00", offset: -5 * 3600, text: "call", target: at(2026, 5, 5, 1, 0)},
		{in: "sleep at 5", text: "sleep", target: at(2026, 5, 5, 5, 0)},
		{in: "trip in 100 weeks", text: "trip", target: now.AddDate(0, 0, 700).Unix()},
		// an amount that does not fit is not a date and stays in the text
		{in: "tea in 99999999999999999999 minutes at 10:00", text: "tea in 99999999999999999999 minutes", target: at(2026, 5, 5, 10, 0)},
	}
	p := New()
	for _, tc := range cases {
		got := p.Parse(reminders.ParseRequest{Text: tc.in, Now: now, Offset: tc.offset, Prevalence: 50})
		if len(got) != 1 {
			t.Fatalf("%q: %d candidates %+v", tc.in, len(got), got)
		}
		if got[0].Text != tc.text {
			t.Fatalf("%q: text=%q want %q", tc.in, got[0].Text, tc.text)
		}
		if got[0].Target != tc.target {
			t.Fatalf("%q: target=%s want %s", tc.in, time.Unix(got[0].Target, 0).UTC(), time.Unix(tc.target, 0).UTC())
		}
		if got[0].RepeatPeriod != 0 {
			t.Fatalf("%q: unexpected recurrence", tc.in)
		}
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	p := New()
	for _, in := range []string{
		"",
		"hello there",
		"today",
		"meeting today at 8:00", // already past
		"event on 31.02",
		"31.02 event", // bare dates are too weak at the default prevalence
		"in 0 minutes",
		"tea in 99999999999999999999 minutes",
		"tea in 999999999999 hours",
		"in 99999999999 days",
		"in 3661 days",
		"in 9223372036854775807 seconds",
	} {
		if got := p.Parse(reminders.ParseRequest{Text: in, Now: now, Prevalence: 50}); len(got) != 0 {
			t.Fatalf("%q: expected no candidates, got %+v", in, got)
		}
	}
}

func TestParseSplitsClauses(t *testing.T) {
	t.Parallel()

	got := New().Parse(reminders.ParseRequest{
		Text:       "a in 5 min\nnothing here\nb in 10 min; c tomorrow",
		Now:        now,
		Prevalence: 50,
	})
	if len(got) != 3 {
		t.Fatalf("candidates=%+v", got)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Text != want {
			t.Fatalf("candidate %d text=%q want %q", i, got[i].Text, want)
		}
	}
}

func TestPrevalenceMakesParserStricter(t *testing.T) {
	t.Parallel()

	p := New()
	parse := func(in string, prevalence int) []reminders.Candidate {
		return p.Parse(reminders.ParseRequest{Text: in, Now: now, Prevalence: prevalence})
	}

	if len(parse("sleep at 5", 60)) != 0 {
		t.Fatalf("weak hour form accepted at prevalence 60")
	}
	if len(parse("tickets 10:30", 60)) != 1 || len(parse("tickets 10:30", 70)) != 0 {
		t.Fatalf("bare clock weight not honoured")
	}
	if got := parse("party 05.06", 40); len(got) != 1 || got[0].Text != "party" {
		t.Fatalf("bare date at prevalence 40: %+v", got)
	}
	if got := parse("standup tomorrow at 10:00", 100); len(got) != 0 {
		t.Fatalf("only relative forms pass at 100, got %+v", got)
	}
	if got := parse("tea in 5 min", 100); len(got) != 1 {
		t.Fatalf("relative form rejected at 100")
	}
}
