package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Group selects rows whose protected attributes equal every listed value.
type Group map[string]float64

// Groups selects rows matching any of its members.
type Groups []Group

// ErrEmptyGroups is returned when a group set selects nothing by
// construction.
var ErrEmptyGroups = errors.New("dataset: empty group definition")

// Validate rejects empty group sets and empty members.
func (g Groups) Validate() error {
	if len(g) == 0 {
		return ErrEmptyGroups
	}
	for i, m := range g {
		if len(m) == 0 {
			return fmt.Errorf("%w: member %d has no attributes", ErrEmptyGroups, i)
		}
	}
	return nil
}

// Mask marks the rows of d that belong to the group set. Attributes missing
// from d's protected attributes are an error.
func (g Groups) Mask(d *Dataset) ([]bool, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	type cond struct {
		col int
		val float64
	}
	members := make([][]cond, len(g))
	for i, m := range g {
		for name, val := range m {
			col := d.ProtectedIndex(name)
			if col < 0 {
				return nil, fmt.Errorf("dataset: unknown protected attribute %q", name)
			}
			members[i] = append(members[i], cond{col, val})
		}
	}
	mask := make([]bool, d.Len())
	for r := range mask {
		for _, conds := range members {
			match := true
			for _, c := range conds {
				if d.Protected[r][c.col] != c.val {
					match = false
					break
				}
			}
			if match {
				mask[r] = true
				break
			}
		}
	}
	return mask, nil
}

// String renders the set as "race=0,sex=0|race=1" with sorted keys.
func (g Groups) String() string {
	parts := make([]string, len(g))
	for i, m := range g {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, len(keys))
		for j, k := range keys {
			kv[j] = k + "=" + strconv.FormatFloat(m[k], 'g', -1, 64)
		}
		parts[i] = strings.Join(kv, ",")
	}
	return strings.Join(parts, "|")
}
