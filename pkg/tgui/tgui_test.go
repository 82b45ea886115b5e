package tgui

import (
	"strings"
	"testing"
)

func TestDataAndParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scope, action, payload string
		want                   string
	}{
		{"rem", "confirm", "", "rem:confirm"},
		{"rem", "repeat", "42", "rem:repeat:42"},
		{" tz ", " cancel ", "a:b", "tz:cancel:a:b"},
	}
	for _, tc := range cases {
		got := Data(tc.scope, tc.action, tc.payload)
		if got != tc.want {
			t.Fatalf("Data = %q, want %q", got, tc.want)
		}
		cb, ok := Parse(got)
		if !ok || cb.Payload != tc.payload {
			t.Fatalf("Parse(%q) = %+v, %v", got, cb, ok)
		}
	}
	for _, bad := range []string{"", "rem", ":x", "rem:"} {
		if _, ok := Parse(bad); ok {
			t.Fatalf("Parse(%q) should fail", bad)
		}
	}
}

func TestCheckedData(t *testing.T) {
	t.Parallel()

	if _, err := CheckedData("rem", "repeat", strings.Repeat("9", 60)); err != ErrCallbackDataTooLong {
		t.Fatalf("expected ErrCallbackDataTooLong, got %v", err)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"привет", 2, "пр…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q,%d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestHTML(t *testing.T) {
	t.Parallel()

	if got := JoinH(" ", B("a<b"), "", I("c")); got != "<b>a&lt;b</b> <i>c</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}
