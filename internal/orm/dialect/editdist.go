package dialect

// Edit costs used by EditDistance, matching SQLite's spellfix defaults.
const (
	InsertCost     = 100
	DeleteCost     = 100
	SubstituteCost = 150
)

// EditDistance is the Go implementation of SQLite's editdist3(A, B) used when
// the spellfix1 extension is not loaded. It returns the weighted Levenshtein
// distance that transforms a into b.
func EditDistance(a, b string) int64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return int64(len(rb) * InsertCost)
	}
	if len(rb) == 0 {
		return int64(len(ra) * DeleteCost)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j * InsertCost
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i * DeleteCost
		for j := 1; j <= len(rb); j++ {
			sub := prev[j-1]
			if ra[i-1] != rb[j-1] {
				sub += SubstituteCost
			}
			del := prev[j] + DeleteCost
			ins := curr[j-1] + InsertCost
			curr[j] = min(sub, del, ins)
		}
		prev, curr = curr, prev
	}

	return int64(prev[len(rb)])
}
