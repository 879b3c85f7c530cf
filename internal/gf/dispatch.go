package gf

import (
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
)

// selected is the process-wide dispatch decision, computed once. Per §9 of
// the design, this is the one piece of global mutable state in the core,
// and it is immutable after init.
var selected = sync.OnceValue(func() Tier {
	return selectTier(cpuid.CPU, benchmarkPortableVsScalar)
})

// Selected returns the dispatched tier for this process.
func Selected() Tier {
	return selected()
}

// cpuFeatures is the subset of cpuid.CPU this package depends on, narrowed
// to an interface so tests can force a feature matrix without touching the
// real host's capabilities.
type cpuFeatures interface {
	Has(id cpuid.FeatureID) bool
}

// selectTier implements the dispatch order AVX2 > SSSE3 > NEON > portable >
// scalar, with the explicit anti-regression rule: the portable fallback is
// only selected when a runtime calibration shows it is not slower than
// scalar on this host. cmp is injected so the calibration can be replaced
// in tests without spending wall-clock time.
func selectTier(cpu cpuFeatures, cmp func() bool) Tier {
	switch {
	case cpu.Has(cpuid.AVX2):
		return TierAVX2
	case cpu.Has(cpuid.SSSE3):
		return TierSSSE3
	case cpu.Has(cpuid.ASIMD):
		return TierNEON
	}

	if cmp() {
		return TierPortable
	}

	return TierScalar
}

// benchmarkPortableVsScalar runs a small, bounded calibration comparing the
// portable tier against the scalar tier on a representative buffer, and
// reports whether portable is at least as fast. It is intentionally cheap
// (microseconds) so it never meaningfully delays process start.
func benchmarkPortableVsScalar() bool {
	const (
		bufSize = 4096
		rounds  = 8
	)

	src := make([]byte, bufSize)
	for i := range src {
		src[i] = byte(i * 7 % 251)
	}
	dst := make([]byte, bufSize)

	scalarTime := timeTier(TierScalar, dst, src, rounds)
	portableTime := timeTier(TierPortable, dst, src, rounds)

	return portableTime <= scalarTime
}

func timeTier(tier Tier, dst, src []byte, rounds int) time.Duration {
	start := time.Now()
	for r := range rounds {
		MulAddBytes(tier, dst, src, uint16(r+1))
	}

	return time.Since(start)
}
