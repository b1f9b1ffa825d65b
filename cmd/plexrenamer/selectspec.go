package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// parseSelection parses a comma-separated list of result indices and
// inclusive ranges, such as "0,2,5-7", against a list of n results. The
// returned indices are sorted and unique.
func parseSelection(spec string, n int) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("empty selection")
	}

	seen := make(map[int]bool)
	var out []int
	add := func(i int) error {
		if i < 0 || i >= n {
			return fmt.Errorf("index %d out of range (%d results)", i, n)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
		return nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty item in selection %q", spec)
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid index %q", part)
			}
			if err := add(i); err != nil {
				return nil, err
			}
			continue
		}

		a, errA := strconv.Atoi(strings.TrimSpace(lo))
		b, errB := strconv.Atoi(strings.TrimSpace(hi))
		if errA != nil || errB != nil {
			return nil, fmt.Errorf("invalid range %q", part)
		}
		if a > b {
			return nil, fmt.Errorf("range %q is reversed", part)
		}
		for i := a; i <= b; i++ {
			if err := add(i); err != nil {
				return nil, err
			}
		}
	}

	slices.Sort(out)
	return out, nil
}
