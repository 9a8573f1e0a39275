package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidechannel-merge/sidechannel/pkg/report"
)

func TestFormatIDSequence(t *testing.T) {
	cases := []struct {
		name string
		ids  []int
		want string
	}{
		{"empty", nil, ""},
		{"single", []int{5}, "5"},
		{"short run stays individual", []int{1, 2}, "1 2"},
		{"run of three compresses", []int{1, 2, 3}, "1-3"},
		{"mixed runs", []int{1, 2, 3, 7, 10, 11, 12, 13}, "1-3 7 10-13"},
		{"non-contiguous all individual", []int{1, 3, 5}, "1 3 5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, report.FormatIDSequence(tc.ids))
		})
	}
}
