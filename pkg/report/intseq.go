package report

import (
	"strconv"
	"strings"
)

// FormatIDSequence renders ascending ids with run-length compression:
// runs of length >= 3 collapse to "a-b"; shorter runs print individually.
// Entries are space-separated with no trailing space. ids must already be
// in ascending order (testcaseset.Set.Each/Members guarantee this).
func FormatIDSequence(ids []int) string {
	var b strings.Builder

	i := 0
	first := true

	writeSep := func() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
	}

	for i < len(ids) {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}

		runLen := j - i + 1
		if runLen >= 3 {
			writeSep()
			b.WriteString(strconv.Itoa(ids[i]))
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(ids[j]))
		} else {
			for k := i; k <= j; k++ {
				writeSep()
				b.WriteString(strconv.Itoa(ids[k]))
			}
		}

		i = j + 1
	}

	return b.String()
}
