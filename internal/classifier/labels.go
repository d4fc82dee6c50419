package classifier

// ImageNet-1k label indices the decision rule looks at
var (
	// 281 tabby cat through 293 cheetah
	catLabels = labelSet(281, 282, 283, 284, 285, 286, 287, 288, 289, 290, 291, 292, 293)

	badLabels = map[int]string{
		916: "web site, website, internet site, site",
		917: "comic book",
		921: "book jacket, dust cover, dust jacket, dust wrapper",
	}
)

// TopK is how many of the highest-scoring labels are inspected
const TopK = 50

func labelSet(ids ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func IsCatLabel(id int) bool {
	_, ok := catLabels[id]
	return ok
}

func IsBadLabel(id int) bool {
	_, ok := badLabels[id]
	return ok
}
