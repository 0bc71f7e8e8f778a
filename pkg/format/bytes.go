// Package format renders byte counters for upload progress.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// Bytes renders n with decimal units and at most one fractional digit.
// A trailing ".0" is dropped, so 4000 is "4KB" and 2134 is "2.1KB".
func Bytes(n int64) string {
	if n < 0 {
		return "-" + Bytes(-n)
	}
	if n < 1000 {
		return strconv.FormatInt(n, 10) + byteUnits[0]
	}

	value := float64(n)
	unit := 0
	for value >= 1000 && unit < len(byteUnits)-1 {
		value /= 1000
		unit++
	}
	rounded := math.Round(value*10) / 10
	if rounded >= 1000 && unit < len(byteUnits)-1 {
		rounded = math.Round(rounded/1000*10) / 10
		unit++
	}

	s := strconv.FormatFloat(rounded, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	return s + byteUnits[unit]
}

// Progress renders "copied / total", e.g. "2.1KB / 4KB".
func Progress(copied, total int64) string {
	return fmt.Sprintf("%s / %s", Bytes(copied), Bytes(total))
}
