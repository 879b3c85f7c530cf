// Package reedsolomon reconstructs missing PAR2 data slices from recovery
// slices, using Reed-Solomon erasure coding over GF(2^16).
package reedsolomon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/spf13/afero"

	"github.com/par2lab/par2verify/internal/gf"
	"github.com/par2lab/par2verify/internal/par2"
)

// ErrInsufficientRecovery is returned when fewer usable recovery slices
// exist than there are missing data slices to reconstruct.
var ErrInsufficientRecovery = errors.New("insufficient recovery slices")

// Engine reconstructs missing data slices of a [par2.RecoverySet]. Recovery
// slice payloads are read lazily from disk, never materialized up front,
// and optionally cached across calls.
type Engine struct {
	fs      afero.Fs
	workers int
	cache   *sliceCache
}

// NewEngine returns an [Engine] bound to fs. workers <= 0 defaults to
// runtime.NumCPU(); cacheSlices <= 0 disables the recovery-slice cache.
func NewEngine(fs afero.Fs, workers, cacheSlices int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Engine{
		fs:      fs,
		workers: workers,
		cache:   newSliceCache(cacheSlices),
	}
}

// Reconstruct fills every slice in data whose global index is listed in
// missing, in place, using recovery slices from rs. Every entry of data
// must already be slice-size bytes (the final slice zero-padded by the
// caller per §4.3's convention); entries at indices in missing may be nil
// or garbage, they are overwritten entirely.
func (e *Engine) Reconstruct(ctx context.Context, rs *par2.RecoverySet, data [][]byte, missing []int) error {
	if len(missing) == 0 {
		return nil
	}

	available := make([]uint32, 0, len(rs.RecoverySlices))
	for exp := range rs.RecoverySlices {
		available = append(available, exp)
	}

	if len(available) < len(missing) {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientRecovery, len(missing), len(available))
	}

	exponents := pickExponents(available, len(missing))

	matrix := buildVandermonde(exponents, missing)

	inverse, err := invert(matrix)
	if err != nil {
		return fmt.Errorf("reed-solomon reconstruction: %w", err)
	}

	sliceSize := int(rs.SliceSize)
	present := presentIndices(len(data), missing)

	residuals := make([][]byte, len(exponents))

	for row, exp := range exponents {
		raw, err := e.loadRecoverySlice(rs.RecoverySlices[exp], sliceSize)
		if err != nil {
			return fmt.Errorf("failed to load recovery slice exponent=%d: %w", exp, err)
		}

		// Known-contribution subtraction: XOR out every already-known
		// data slice's effect on this recovery equation, leaving only
		// the combined effect of the unknowns. Chunked the same way as
		// reconstructChunked's solve step, so a single recovery slice with
		// a large slice_size still gets parallel speedup.
		residual := append([]byte(nil), raw...)
		subtractKnownContributions(e.workers, exp, residual, data, present, sliceSize)

		residuals[row] = residual
	}

	return reconstructChunked(ctx, e.workers, inverse, residuals, data, missing, sliceSize)
}

// chunkRanges splits [0, sliceSize) into identically-bounded byte ranges of
// at most chunkBytes width, rounded down to an even byte count so a chunk
// boundary never splits a 16-bit GF symbol.
func chunkRanges(sliceSize int) [][2]int {
	size := chunkBytes
	if size > sliceSize {
		size = sliceSize
	}
	if size%2 == 1 {
		size--
	}
	if size <= 0 {
		size = sliceSize
	}

	var ranges [][2]int
	for start := 0; start < sliceSize; start += size {
		end := start + size
		if end > sliceSize {
			end = sliceSize
		}

		ranges = append(ranges, [2]int{start, end})
	}

	return ranges
}

// subtractKnownContributions XORs out every already-known data slice's
// effect on one recovery equation from residual, chunked by byte range and
// run across the worker pool so a single recovery slice with a large
// slice_size still parallelizes.
func subtractKnownContributions(workers int, exp uint32, residual []byte, data [][]byte, present []int, sliceSize int) {
	ranges := chunkRanges(sliceSize)

	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup

	for _, r := range ranges {
		start, end := r[0], r[1]

		sem <- struct{}{}
		wg.Add(1)

		go func(start, end int) {
			defer wg.Done()
			defer func() { <-sem }()

			tier := gf.Selected()
			dst := residual[start:end]

			for _, idx := range present {
				coeff := gf.Coefficient(int64(exp), int64(idx))
				if coeff == 0 {
					continue
				}

				gf.MulAddBytes(tier, dst, data[idx][start:end], coeff)
			}
		}(start, end)
	}

	wg.Wait()
}

// chunkBytes is the byte-range granularity reconstruction work is split
// into: each missing slice's sliceSize bytes are cut into chunks of this
// width (the final chunk taking whatever remains), and every chunk of
// every missing column becomes one independent unit of work. Rounded to
// an even byte count so a chunk boundary never splits a 16-bit GF symbol.
const chunkBytes = 256 * 1024

// reconstructChunked solves for every missing slice by splitting sliceSize
// into identically-bounded byte-range chunks and handing each
// (missing column, chunk) pair to the worker pool, bounded by workers. This
// keeps a reconstruction pass parallel even when there are few missing
// slices but a large slice_size, not just when there are many missing
// slices: chunking and column fan-out compose into one job list.
func reconstructChunked(
	ctx context.Context, workers int, inverse [][]uint16, residuals [][]byte, data [][]byte, missing []int, sliceSize int,
) error {
	for _, idx := range missing {
		dst := data[idx]
		if len(dst) != sliceSize {
			data[idx] = make([]byte, sliceSize)
		} else {
			clear(dst)
		}
	}

	type chunkJob struct {
		col, idx   int
		start, end int
	}

	var jobs []chunkJob

	for _, r := range chunkRanges(sliceSize) {
		for col, idx := range missing {
			jobs = append(jobs, chunkJob{col: col, idx: idx, start: r[0], end: r[1]})
		}
	}

	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup

	for _, j := range jobs {
		select {
		case <-ctx.Done():
			wg.Wait()

			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)

		go func(j chunkJob) {
			defer wg.Done()
			defer func() { <-sem }()

			dst := data[j.idx][j.start:j.end]
			tier := gf.Selected()

			for row, residual := range residuals {
				coeff := inverse[j.col][row]
				if coeff == 0 {
					continue
				}

				gf.MulAddBytes(tier, dst, residual[j.start:j.end], coeff)
			}
		}(j)
	}

	wg.Wait()

	return nil
}

// loadRecoverySlice reads a recovery slice's payload, using the cache
// first. sliceSize is the authoritative length; a shorter ref.Length
// indicates a truncated volume and is reported as an error rather than
// silently zero-padded, since recovery data (unlike source data) has no
// zero-padding convention to fall back on.
func (e *Engine) loadRecoverySlice(ref par2.RecoverySliceRef, sliceSize int) ([]byte, error) {
	key := cacheKey{vol: ref.SourceVol, offset: ref.Offset}
	if data, ok := e.cache.get(key); ok {
		return data, nil
	}

	if int(ref.Length) < sliceSize {
		return nil, fmt.Errorf("recovery slice at %s:%d shorter than slice size (%d < %d)",
			ref.SourceVol, ref.Offset, ref.Length, sliceSize)
	}

	f, err := e.fs.Open(ref.SourceVol)
	if err != nil {
		return nil, fmt.Errorf("failed to open recovery volume %q: %w", ref.SourceVol, err)
	}
	defer f.Close()

	buf := make([]byte, sliceSize)
	if _, err := f.ReadAt(buf, ref.Offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read recovery slice payload: %w", err)
	}

	e.cache.put(key, buf)

	return buf, nil
}
