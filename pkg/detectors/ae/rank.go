package ae

import "sort"

// rank returns the indexes of the floor(len(scores)*ratio) highest scores,
// ordered ascending by score. Equal scores keep their index order.
func rank(scores []float64, ratio float64) []int {
	n := int(float64(len(scores)) * ratio)
	if n <= 0 {
		return []int{}
	}
	if n > len(scores) {
		n = len(scores)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	out := make([]int, n)
	copy(out, order[len(order)-n:])
	return out
}
