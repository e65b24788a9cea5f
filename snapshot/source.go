package snapshot

import (
	"cmp"
	"slices"
	"strings"
)

// interval is a half-open byte range [start, end) of a script.
type interval struct {
	start, end int
}

// compactSource builds the smallest source string that still contains the
// text of every interval. Intervals are visited by ascending start, the
// longest first among equal starts; one nested inside the current window adds no text and only gets
// an offset relative to the window. The returned map translates an
// original start offset into an offset in the compacted string.
func compactSource(source string, intervals []interval) (string, map[int]int) {
	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b interval) int {
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(b.end, a.end)
	})
	sorted = slices.Compact(sorted)

	var out strings.Builder
	offsets := make(map[int]int, len(sorted))
	winStart, winEnd := 0, 0
	for _, iv := range sorted {
		if iv.end <= winEnd {
			offsets[iv.start] = offsets[winStart] + iv.start - winStart
			continue
		}
		winStart, winEnd = iv.start, iv.end
		offsets[winStart] = out.Len()
		out.WriteString(source[iv.start:iv.end])
	}
	return out.String(), offsets
}
