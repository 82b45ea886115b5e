package reminders

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// maxRangeIDs bounds how many ids one "a-b" range may expand to.
const maxRangeIDs = 11

var (
	deleteAllRe = regexp.MustCompile(`(?i)(^|[^\p{L}])(all|все|всё)($|[^\p{L}])`)
	deleteTokRe = regexp.MustCompile(`(\d+)\s*[-–—]\s*(\d+)|\d+`)
)

// DeletionRequest is what a delete command asks for. An empty request is invalid input.
type DeletionRequest struct {
	All bool
	IDs []int
}

func (r DeletionRequest) Empty() bool { return !r.All && len(r.IDs) == 0 }

// ResolveDeletion extracts the ids named by text: plain integers and "a-b" ranges
// (swapped when a > b, at most 11 ids counted from the lower bound), or "all".
// Ids below 1 and numbers that do not fit an int are ignored, so "0-5" names 1..5.
// The result is sorted and free of duplicates.
func ResolveDeletion(text string) DeletionRequest {
	if deleteAllRe.MatchString(text) {
		return DeletionRequest{All: true}
	}

	var ids []int
	for _, m := range deleteTokRe.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			if id, ok := atoiID(m[0]); ok {
				ids = append(ids, id)
			}
			continue
		}
		lo, okLo := atoiBound(m[1])
		hi, okHi := atoiBound(m[2])
		switch {
		case okLo && okHi:
			if lo > hi {
				lo, hi = hi, lo
			}
			for id := max(lo, 1); id <= hi && id-lo < maxRangeIDs; id++ {
				ids = append(ids, id)
			}
		case okLo && lo >= 1:
			ids = append(ids, lo)
		case okHi && hi >= 1:
			ids = append(ids, hi)
		}
	}

	slices.Sort(ids)
	return DeletionRequest{IDs: slices.Compact(ids)}
}

func atoiID(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimLeft(s, "0"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// atoiBound parses a range bound; unlike an id it may be 0.
func atoiBound(s string) (int, bool) {
	if strings.TrimLeft(s, "0") == "" {
		return 0, true
	}
	return atoiID(s)
}

// shortcutID recognises "/N" (optionally "/N@bot"), the one-id delete shortcut.
func shortcutID(text string) (int, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "/") {
		return 0, false
	}
	t = t[1:]
	if at := strings.IndexByte(t, '@'); at >= 0 {
		t = t[:at]
	}
	if t == "" || strings.TrimLeft(t, "0123456789") != "" {
		return 0, false
	}
	return atoiID(t)
}
