package index

// PostingList holds ascending, duplicate-free store indices for one token.
type PostingList []int

// Intersect returns the indices present in every list, ascending. Lists are
// merged shortest first so the candidate set shrinks as early as possible.
func Intersect(lists ...PostingList) PostingList {
	if len(lists) == 0 {
		return PostingList{}
	}
	ordered := make([]PostingList, len(lists))
	copy(ordered, lists)
	sortByLen(ordered)

	result := ordered[0]
	for _, next := range ordered[1:] {
		if len(result) == 0 {
			break
		}
		result = mergeAnd(result, next)
	}
	out := make(PostingList, len(result))
	copy(out, result)
	return out
}

func mergeAnd(a, b PostingList) PostingList {
	out := make(PostingList, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func sortByLen(lists []PostingList) {
	for i := 1; i < len(lists); i++ {
		for j := i; j > 0 && len(lists[j]) < len(lists[j-1]); j-- {
			lists[j], lists[j-1] = lists[j-1], lists[j]
		}
	}
}
