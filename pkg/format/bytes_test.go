package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name   string
		copied int64
		total  int64
		want   string
	}{
		{name: "bytes", copied: 0, total: 100, want: "0B / 100B"},
		{name: "kilobytes with fraction", copied: 2134, total: 4000, want: "2.1KB / 4KB"},
		{name: "kilobytes and megabytes", copied: 1000, total: 1000000, want: "1KB / 1MB"},
		{name: "gigabytes", copied: 16122233344, total: 34022233344, want: "16.1GB / 34GB"},
		{name: "terabytes", copied: 0, total: 4000000000000, want: "0B / 4TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Progress(tt.copied, tt.total))
		})
	}
}

func TestBytes_RoundsIntoNextUnit(t *testing.T) {
	assert.Equal(t, "1MB", Bytes(999999))
	assert.Equal(t, "999B", Bytes(999))
}
