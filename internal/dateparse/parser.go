// Package dateparse finds reminder dates in free English or Russian text.
//
// Every line (or ";"-separated clause) yields at most one reminder. The date
// words are cut out of the clause and the rest becomes the reminder text.
//
// Each recognised form carries a weight in percent: explicit forms such as
// "in 5 minutes" weigh 100, ambiguous ones such as a bare "05.06" much less.
// Forms weighing less than the request's prevalence are left in the text.
package dateparse

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminders"
)

// DefaultHour is used when a day is named without a time.
const DefaultHour = 9

// maxHorizonDays bounds how far ahead a relative form may reach. Longer ones
// are not recognised and stay in the text.
const maxHorizonDays = 3660

// Weights of the recognised forms.
const (
	weightRelative  = 100
	weightDayWord   = 90
	weightClockAt   = 90
	weightClockBare = 60
	weightHourAMPM  = 80
	weightHourAt    = 50
	weightDateOn    = 80
	weightDateYear  = 70
	weightDateBare  = 40
)

const (
	lead  = `(?:^|[\s,])`
	trail = `(?:$|[\s,.!?;])`
)

var (
	relRe = regexp.MustCompile(`(?i)` + lead + `((?:in|через)\s+(?:(\d+|an?|one|одну|один|пару)\s*)?` +
		`(seconds?|secs?|minutes?|mins?|hours?|hrs?|h|days?|weeks?|` +
		`секунд[уы]?|сек|минут[уы]?|мин|час(?:а|ов)?|день|дня|дней|суток|сутки|недел[юиь]))` + trail)
	dayRe   = regexp.MustCompile(`(?i)` + lead + `(day after tomorrow|послезавтра|tomorrow|завтра|today|сегодня)` + trail)
	clockRe = regexp.MustCompile(`(?i)` + lead + `((?:(?:at|в|во)\s+)?(\d{1,2}):(\d{2})(?:\s*(am|pm))?)` + trail)
	hourRe  = regexp.MustCompile(`(?i)` + lead + `((?:at|в|во)\s+(\d{1,2})\s*(am|pm)?)` + trail)
	dateRe  = regexp.MustCompile(`(?i)` + lead + `((?:on\s+)?(\d{1,2})\.(\d{1,2})(?:\.(\d{4}|\d{2}))?)` + trail)

	leadInRe  = regexp.MustCompile(`(?i)^(?:remind me(?:\s+to)?|напомни(?:ть)?(?:\s+мне)?)\s+`)
	clauseSep = regexp.MustCompile(`[\n;]+`)
)

// Parser implements reminders.Parser.
type Parser struct{}

func New() *Parser { return &Parser{} }

var _ reminders.Parser = (*Parser)(nil)

func (p *Parser) Parse(req reminders.ParseRequest) []reminders.Candidate {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	var out []reminders.Candidate
	for _, clause := range clauseSep.Split(req.Text, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if c, ok := parseClause(clause, now, req.Offset, req.Prevalence); ok {
			out = append(out, c)
		}
	}
	return out
}

type span struct{ lo, hi int }

// found collects what one clause says about time.
type found struct {
	spans []span

	rel     time.Duration
	relDays int
	hasRel  bool

	dayShift int
	hasDay   bool

	hour, min int
	hasClock  bool

	day, month, year int
	hasDate          bool
}

func parseClause(clause string, now time.Time, offset int64, prevalence int) (reminders.Candidate, bool) {
	f := scan(clause, prevalence)
	if len(f.spans) == 0 {
		return reminders.Candidate{}, false
	}
	target, ok := f.resolve(now, offset)
	if !ok {
		return reminders.Candidate{}, false
	}

	text := strip(clause, f.spans)
	if text == "" {
		text = tidy(clause)
	}
	return reminders.Candidate{Text: text, Target: target.Unix()}, true
}

// scan records every form weighing at least prevalence.
func scan(clause string, prevalence int) found {
	var f found
	if m := relRe.FindStringSubmatchIndex(clause); m != nil && weightRelative >= prevalence {
		n, ok := 1, true
		if m[4] >= 0 {
			n, ok = count(clause[m[4]:m[5]])
		}
		unit := strings.ToLower(clause[m[6]:m[7]])
		if days := unitDays(unit); days > 0 {
			if ok = ok && n <= maxHorizonDays/days; ok {
				f.relDays = n * days
			}
		} else {
			per := unitDuration(unit)
			if ok = ok && int64(n) <= int64(maxHorizonDays*24*time.Hour/per); ok {
				f.rel = time.Duration(n) * per
			}
		}
		if ok {
			f.hasRel = true
			f.spans = append(f.spans, span{m[2], m[3]})
		}
	}
	if m := dayRe.FindStringSubmatchIndex(clause); m != nil && weightDayWord >= prevalence {
		switch strings.ToLower(clause[m[2]:m[3]]) {
		case "tomorrow", "завтра":
			f.dayShift = 1
		case "day after tomorrow", "послезавтра":
			f.dayShift = 2
		}
		f.hasDay = true
		f.spans = append(f.spans, span{m[2], m[3]})
	}
	if m := clockRe.FindStringSubmatchIndex(clause); m != nil {
		h, _ := strconv.Atoi(clause[m[4]:m[5]])
		mi, _ := strconv.Atoi(clause[m[6]:m[7]])
		ampm := ""
		if m[8] >= 0 {
			ampm = clause[m[8]:m[9]]
		}
		w := weightClockBare
		if strings.TrimSpace(clause[m[2]:m[4]]) != "" {
			w = weightClockAt
		}
		if h, ok := hour12(h, ampm); ok && mi < 60 && w >= prevalence {
			f.hour, f.min, f.hasClock = h, mi, true
			f.spans = append(f.spans, span{m[2], m[3]})
		}
	} else if m := hourRe.FindStringSubmatchIndex(clause); m != nil {
		h, _ := strconv.Atoi(clause[m[4]:m[5]])
		ampm, w := "", weightHourAt
		if m[6] >= 0 {
			ampm, w = clause[m[6]:m[7]], weightHourAMPM
		}
		if h, ok := hour12(h, ampm); ok && w >= prevalence {
			f.hour, f.hasClock = h, true
			f.spans = append(f.spans, span{m[2], m[3]})
		}
	}
	if m := dateRe.FindStringSubmatchIndex(clause); m != nil && dateWeight(clause, m) >= prevalence {
		f.day, _ = strconv.Atoi(clause[m[4]:m[5]])
		f.month, _ = strconv.Atoi(clause[m[6]:m[7]])
		if m[8] >= 0 {
			f.year, _ = strconv.Atoi(clause[m[8]:m[9]])
			if f.year < 100 {
				f.year += 2000
			}
		}
		f.hasDate = true
		f.spans = append(f.spans, span{m[2], m[3]})
	}
	return f
}

// resolve turns the findings into an absolute time; wall-clock parts are read
// in the author's offset. Results in the past are rejected.
func (f found) resolve(now time.Time, offset int64) (time.Time, bool) {
	loc := time.FixedZone("", int(offset))
	local := now.In(loc)

	if f.hasRel && f.relDays == 0 {
		return now.Add(f.rel), f.rel > 0
	}

	h, mi := DefaultHour, 0
	if f.hasClock {
		h, mi = f.hour, f.min
	}

	var t time.Time
	switch {
	case f.hasRel:
		d := local.AddDate(0, 0, f.relDays)
		if !f.hasClock {
			return d, true
		}
		t = time.Date(d.Year(), d.Month(), d.Day(), h, mi, 0, 0, loc)
	case f.hasDate:
		y := f.year
		if y == 0 {
			y = local.Year()
		}
		t = time.Date(y, time.Month(f.month), f.day, h, mi, 0, 0, loc)
		if t.Day() != f.day || int(t.Month()) != f.month {
			return time.Time{}, false
		}
		if f.year == 0 && !t.After(now) {
			t = t.AddDate(1, 0, 0)
		}
	case f.hasDay:
		if !f.hasClock && f.dayShift == 0 {
			// "today" alone names no moment
			return time.Time{}, false
		}
		t = time.Date(local.Year(), local.Month(), local.Day()+f.dayShift, h, mi, 0, 0, loc)
	case f.hasClock:
		t = time.Date(local.Year(), local.Month(), local.Day(), h, mi, 0, 0, loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
	default:
		return time.Time{}, false
	}
	return t, t.After(now)
}

func dateWeight(clause string, m []int) int {
	switch {
	case strings.TrimSpace(clause[m[2]:m[4]]) != "":
		return weightDateOn
	case m[8] >= 0:
		return weightDateYear
	}
	return weightDateBare
}

func strip(clause string, spans []span) string {
	slices.SortFunc(spans, func(a, b span) int { return a.lo - b.lo })
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp.lo < pos {
			continue
		}
		b.WriteString(clause[pos:sp.lo])
		b.WriteByte(' ')
		pos = sp.hi
	}
	b.WriteString(clause[pos:])
	return tidy(leadInRe.ReplaceAllString(tidy(b.String()), ""))
}

func tidy(s string) string {
	return strings.Trim(strings.Join(strings.Fields(s), " "), " ,.-–—:;")
}

// count reads the amount of a relative form; false when it does not fit an int.
func count(s string) (int, bool) {
	switch strings.ToLower(s) {
	case "a", "an", "one", "одну", "один":
		return 1, true
	case "пару":
		return 2, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func unitDuration(u string) time.Duration {
	switch {
	case strings.HasPrefix(u, "s"), strings.HasPrefix(u, "сек"):
		return time.Second
	case strings.HasPrefix(u, "m"), strings.HasPrefix(u, "мин"):
		return time.Minute
	default:
		return time.Hour
	}
}

func unitDays(u string) int {
	switch {
	case strings.HasPrefix(u, "d"), strings.HasPrefix(u, "д"), strings.HasPrefix(u, "сут"):
		return 1
	case strings.HasPrefix(u, "w"), strings.HasPrefix(u, "нед"):
		return 7
	}
	return 0
}

func hour12(h int, ampm string) (int, bool) {
	switch strings.ToLower(ampm) {
	case "":
		return h, h < 24
	case "am":
		if h < 1 || h > 12 {
			return 0, false
		}
		return h % 12, true
	default:
		if h < 1 || h > 12 {
			return 0, false
		}
		return h%12 + 12, true
	}
}
