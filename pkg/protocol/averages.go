package protocol

// AverageCounts lists the acquisition average counts the instrument accepts,
// in the order of the enumeration exposed to clients.
var AverageCounts = []int{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536}

// ValidAverageCount reports whether n is one of AverageCounts.
func ValidAverageCount(n int) bool {
	_, ok := AverageIndex(n)
	return ok
}

// AverageIndex returns the enumeration index of n.
func AverageIndex(n int) (int, bool) {
	for i, v := range AverageCounts {
		if v == n {
			return i, true
		}
	}
	return 0, false
}

// AverageFromIndex returns the average count at enumeration index i.
func AverageFromIndex(i int) (int, bool) {
	if i < 0 || i >= len(AverageCounts) {
		return 0, false
	}
	return AverageCounts[i], true
}
