package listing

import (
	"math"
	"strconv"
)

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatByteSize renders a byte count with base 1024 units. Values below 10
// get two decimals, below 100 one, anything else none. Trailing zeros are
// dropped, so 2048 is "2 KiB" and 1536 is "1.5 KiB".
func FormatByteSize(bytes int64) string {
	value := float64(bytes)
	unit := 0
	for math.Abs(value) >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}

	for {
		rounded := roundForDisplay(value)
		// 1023.999 KiB rounds up to 1024 KiB, which is shown as 1 MiB
		if math.Abs(rounded) < 1024 || unit == len(byteUnits)-1 {
			return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + byteUnits[unit]
		}
		value /= 1024
		unit++
	}
}

func roundForDisplay(value float64) float64 {
	decimals := 0
	switch magnitude := math.Abs(value); {
	case magnitude < 10:
		decimals = 2
	case magnitude < 100:
		decimals = 1
	}

	scale := math.Pow(10, float64(decimals))
	rounded := math.Floor(math.Abs(value)*scale+0.5) / scale
	if value < 0 {
		rounded = -rounded
	}
	return rounded
}
