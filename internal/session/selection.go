package session

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIndexOutOfRange is returned when a selection index does not refer to
// an entry of the current list.
var ErrIndexOutOfRange = errors.New("index out of range")

// CheckState is the state of an aggregate "select all" checkbox.
type CheckState int

// Aggregate checkbox states.
const (
	Unchecked CheckState = iota
	Indeterminate
	Checked
)

func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unchecked"
	}
}

// Selection is a set of indices into a list of fixed length. Every member
// is in [0, Total()).
type Selection struct {
	total int
	set   map[int]struct{}
}

// NewSelection returns an empty selection over a list of n entries.
func NewSelection(n int) Selection {
	if n < 0 {
		n = 0
	}
	return Selection{total: n, set: make(map[int]struct{})}
}

// Total is the length of the list the selection indexes.
func (s *Selection) Total() int { return s.total }

// Len is the number of selected indices.
func (s *Selection) Len() int { return len(s.set) }

// Contains reports whether i is selected.
func (s *Selection) Contains(i int) bool {
	_, ok := s.set[i]
	return ok
}

// Toggle flips membership of i.
func (s *Selection) Toggle(i int) error {
	if err := s.check(i); err != nil {
		return err
	}
	if s.Contains(i) {
		delete(s.set, i)
	} else {
		s.set[i] = struct{}{}
	}
	return nil
}

// Set adds or removes i.
func (s *Selection) Set(i int, on bool) error {
	if err := s.check(i); err != nil {
		return err
	}
	if on {
		s.set[i] = struct{}{}
	} else {
		delete(s.set, i)
	}
	return nil
}

// All selects every index.
func (s *Selection) All() {
	if s.set == nil {
		s.set = make(map[int]struct{}, s.total)
	}
	for i := range s.total {
		s.set[i] = struct{}{}
	}
}

// None clears the selection.
func (s *Selection) None() {
	s.set = make(map[int]struct{})
}

// Indices returns the selected indices in ascending order.
func (s *Selection) Indices() []int {
	out := make([]int, 0, len(s.set))
	for i := range s.set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Aggregate derives the state of the "select all" checkbox.
func (s *Selection) Aggregate() CheckState {
	return Aggregate(len(s.set), s.total)
}

func (s *Selection) check(i int) error {
	if i < 0 || i >= s.total {
		return fmt.Errorf("selecting %d of %d: %w", i, s.total, ErrIndexOutOfRange)
	}
	if s.set == nil {
		s.set = make(map[int]struct{})
	}
	return nil
}

// Aggregate maps k selected out of n to a checkbox state: unchecked for
// none, checked for all, indeterminate in between.
func Aggregate(k, n int) CheckState {
	switch {
	case k <= 0 || n <= 0:
		return Unchecked
	case k >= n:
		return Checked
	default:
		return Indeterminate
	}
}
