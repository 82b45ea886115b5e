package replies

import (
	"fmt"
	"strings"
	"time"
)

// FormatOffset renders an offset in seconds as "UTC+03:00".
func FormatOffset(seconds int64) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, seconds/3600, seconds%3600/60)
}

// LocalTime converts a unix target into the wall clock of a user at offset seconds.
func LocalTime(target, offset int64) time.Time {
	return time.Unix(target, 0).In(time.FixedZone(FormatOffset(offset), int(offset)))
}

// FormatTime renders a unix target in the user's offset.
func FormatTime(target, offset int64, lang Language) string {
	t := LocalTime(target, offset)
	if lang == RU {
		return t.Format("02.01.2006 15:04")
	}
	return t.Format("Jan 2, 2006 15:04")
}

// FormatPeriod renders a repeat period compactly ("every 1h30m").
func FormatPeriod(seconds int64, lang Language) string {
	d := (time.Duration(seconds) * time.Second).String()
	if strings.HasSuffix(d, "m0s") {
		d = strings.TrimSuffix(d, "0s")
	}
	if strings.HasSuffix(d, "h0m") {
		d = strings.TrimSuffix(d, "0m")
	}
	if lang == RU {
		return "каждые " + d
	}
	return "every " + d
}
