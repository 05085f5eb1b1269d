package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratio packs a sampling fraction; den == 0 disables sampling.
type ratio struct {
	num, den uint64
}

// ratioSampler lets num out of every den events through. It sits on the
// per-message debug path, so Allow is lock-free.
type ratioSampler struct {
	ratio   atomic.Pointer[ratio]
	counter atomic.Uint64
}

func newRatioSampler(numerator, denominator int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(numerator, denominator)
	return s
}

// Set replaces the sampling ratio. Non-positive values let everything through.
func (s *ratioSampler) Set(numerator, denominator int) {
	r := &ratio{}
	if numerator > 0 && denominator > 0 {
		if numerator > denominator {
			numerator = denominator
		}
		r.num, r.den = uint64(numerator), uint64(denominator)
	}
	s.ratio.Store(r)
	s.counter.Store(0)
}

// Allow reports whether the current event passes.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == nil || r.den == 0 {
		return true
	}
	n := s.counter.Add(1) - 1
	return n%r.den < r.num
}

// parseRatioSpec accepts "n/d" or a bare "d" meaning 1/d.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0
	}
	if numStr, denStr, ok := strings.Cut(spec, "/"); ok {
		num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
		den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
		if err1 == nil && err2 == nil {
			return num, den
		}
		return 0, 0
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return 1, v
	}
	return 0, 0
}
