package metrics

import (
	"fmt"
	"sort"
)

// StatusBucket is one row of the status histogram.
type StatusBucket struct {
	Code  int
	Class string
	Count int64
}

// StatusClass returns "2xx", "4xx" and so on for a status code.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// FlattenStatusCodes converts a status histogram into rows sorted by
// descending count, then by code for stability.
func FlattenStatusCodes(codes map[int]int64) []StatusBucket {
	if len(codes) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(codes))
	for code, count := range codes {
		rows = append(rows, StatusBucket{Code: code, Class: StatusClass(code), Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// ClassCounts folds a status histogram into per-class totals.
func ClassCounts(codes map[int]int64) map[string]int64 {
	out := make(map[string]int64)
	for code, count := range codes {
		out[StatusClass(code)] += count
	}
	return out
}
