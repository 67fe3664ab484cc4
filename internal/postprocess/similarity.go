package postprocess

// Similarity computes the classic Ratcliff/Obershelp ratio between two
// strings: twice the total length of matching blocks over the combined
// length, in [0, 1]. Matching blocks are found by recursively taking the
// longest common substring and matching the pieces on either side.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	b2j := make(map[rune][]int, len(rb))
	for j, c := range rb {
		b2j[c] = append(b2j[c], j)
	}

	var matched int
	var recurse func(alo, ahi, blo, bhi int)
	recurse = func(alo, ahi, blo, bhi int) {
		besti, bestj, bestsize := alo, blo, 0

		// Longest match via the running-length table: j2len[j] is the
		// length of the match ending at ra[i-1], rb[j].
		j2len := map[int]int{}
		for i := alo; i < ahi; i++ {
			newj2len := map[int]int{}
			for _, j := range b2j[ra[i]] {
				if j < blo {
					continue
				}
				if j >= bhi {
					break
				}
				k := j2len[j-1] + 1
				newj2len[j] = k
				if k > bestsize {
					besti, bestj, bestsize = i-k+1, j-k+1, k
				}
			}
			j2len = newj2len
		}

		if bestsize == 0 {
			return
		}
		matched += bestsize
		recurse(alo, besti, blo, bestj)
		recurse(besti+bestsize, ahi, bestj+bestsize, bhi)
	}
	recurse(0, len(ra), 0, len(rb))

	return 2.0 * float64(matched) / float64(total)
}
