package core

import "golang.org/x/exp/constraints"

// Series is an ascending time series of indicator or price values
type Series[T constraints.Ordered] []T

// Values returns the underlying slice of values
func (s Series[T]) Values() []T {
	return s
}

// Last returns the value at a specified position from the end.
// Position 0 is the last value, 1 the second-to-last, and so on.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns the last 'size' values, or the whole series when
// it is shorter
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Min returns the smallest value of a non-empty series
func (s Series[T]) Min() T {
	m := s[0]
	for _, v := range s[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest value of a non-empty series
func (s Series[T]) Max() T {
	m := s[0]
	for _, v := range s[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Crossover detects when this series crosses above the reference series
func (s Series[T]) Crossover(ref Series[T]) bool {
	return s.Last(0) > ref.Last(0) && s.Last(1) <= ref.Last(1)
}

// Crossunder detects when this series crosses below the reference series
func (s Series[T]) Crossunder(ref Series[T]) bool {
	return s.Last(0) <= ref.Last(0) && s.Last(1) > ref.Last(1)
}
