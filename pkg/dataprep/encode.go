package dataprep

import (
	"sort"
	"strconv"
)

// OneHot encodes a slice of string categories as indicator columns. Columns
// follow the sorted order of the distinct categories, which is returned
// alongside the encoded rows.
func OneHot(data []string) ([][]float64, []string) {
	seen := map[string]struct{}{}
	for _, v := range data {
		seen[v] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for v := range seen {
		categories = append(categories, v)
	}
	sort.Strings(categories)
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}
	out := make([][]float64, len(data))
	for i, v := range data {
		vec := make([]float64, len(categories))
		vec[index[v]] = 1
		out[i] = vec
	}
	return out, categories
}

// OneHotNames prefixes each category with the column name as "name=category".
func OneHotNames(column string, categories []string) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = column + "=" + c
	}
	return out
}

// Binarize maps values found in positive to 1 and everything else to 0.
func Binarize(data []string, positive ...string) []float64 {
	set := make(map[string]struct{}, len(positive))
	for _, p := range positive {
		set[p] = struct{}{}
	}
	out := make([]float64, len(data))
	for i, v := range data {
		if _, ok := set[v]; ok {
			out[i] = 1
		}
	}
	return out
}

// IsMissing reports whether a raw cell holds one of the usual missing-value
// markers.
func IsMissing(v string) bool {
	switch v {
	case "", "NA", "N/A", "NaN", "nan", "null":
		return true
	}
	return false
}

// ParseNumeric parses a raw cell as float64, treating missing markers as
// absent.
func ParseNumeric(v string) (float64, bool) {
	if IsMissing(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
