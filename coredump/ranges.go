package coredump

import (
	"fmt"
	"strings"
)

// FormatIndexRanges renders a sorted index list as compact ranges,
// e.g. [1 2 3 7 9 10] -> "1-3, 7, 9-10". Used when reporting missing
// stretches of a transfer.
func FormatIndexRanges(indices []int) string {
	if len(indices) == 0 {
		return "none"
	}

	var b strings.Builder
	start, prev := indices[0], indices[0]

	flush := func() {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		if start == prev {
			fmt.Fprintf(&b, "%d", start)
		} else {
			fmt.Fprintf(&b, "%d-%d", start, prev)
		}
	}

	for _, i := range indices[1:] {
		if i == prev+1 {
			prev = i
			continue
		}
		flush()
		start, prev = i, i
	}
	flush()

	return b.String()
}
