package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	kit "remindbot/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()

	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 6)
	s := strings.Join([]string{line, line, line, line}, "\n") // 27 runes
	got := splitText(s, 14, "")
	for _, c := range got {
		if utf8.RuneCountInString(c) > 14 {
			t.Fatalf("chunk too long: %q", c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk has stray newline: %q", c)
		}
	}
	if strings.Join(got, "\n") != s {
		t.Fatalf("chunks do not reassemble: %q", got)
	}
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 8) + "<b>bold</b>"
	got := splitText(s, 10, "HTML")
	if got[0] != strings.Repeat("x", 8) {
		t.Fatalf("first chunk should stop before the tag, got %q", got[0])
	}
}

func TestMarkup(t *testing.T) {
	t.Parallel()

	if markup(nil) != nil || markup([][]kit.Action{{}}) != nil {
		t.Fatalf("empty actions must produce no keyboard")
	}
	rm := markup([][]kit.Action{{{Text: "Yes", Data: "rem:confirm"}, {Text: "No", Data: "rem:decline"}}})
	if rm == nil || len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard %+v", rm)
	}
	if b := rm.InlineKeyboard[0][1]; b.Text != "No" || b.Data != "rem:decline" {
		t.Fatalf("unexpected button %+v", b)
	}
}
