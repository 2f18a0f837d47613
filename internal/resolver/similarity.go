package resolver

import (
	"math"

	"github.com/agnivade/levenshtein"
)

// Ratio scores the similarity of a and b on a 0-100 scale.
func Ratio(a, b string) int {
	la, lb := len([]rune(a)), len([]rune(b))
	if la+lb == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * float64(la+lb-dist) / float64(la+lb)))
}

// PartialRatio scores the best alignment of the shorter string against every
// equally long window of the longer one.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if score := Ratio(s, string(long[i:i+len(short)])); score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}
