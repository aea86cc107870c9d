package progress

import "strconv"

func percent(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return strconv.FormatFloat(fraction*100, 'f', 1, 64) + "%"
}
