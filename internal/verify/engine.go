package verify

import (
	"context"
	"crypto/md5" //nolint:gosec
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"

	"github.com/par2lab/par2verify/internal/par2"
)

// mmapThreshold is the file size at or above which slice reads go through
// golang.org/x/exp/mmap instead of buffered afero reads. Below it the
// overhead of opening a memory mapping outweighs the benefit.
const mmapThreshold = 8 << 20 // 8 MiB

// FileStatus classifies one file's on-disk state relative to its
// FileDescription and IFSC table.
type FileStatus int

const (
	Complete FileStatus = iota
	Partial
	Missing
	SizeMismatch
)

func (s FileStatus) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Partial:
		return "Partial"
	case Missing:
		return "Missing"
	case SizeMismatch:
		return "SizeMismatch"
	default:
		return "Unknown"
	}
}

// FileReport is one file's verification outcome.
type FileReport struct {
	Name         string
	Status       FileStatus
	BadSlices    []int // file-local slice indices, only meaningful for Partial
	GlobalOffset int   // the global slice number of this file's slice 0
}

// Report is the outcome of verifying a whole RecoverySet: per-file status
// plus the globally-missing slice indices a repair pass would need to
// reconstruct. Slices are numbered 0..N in Main-Packet file order,
// concatenated, matching [par2.RecoverySet.Files].
type Report struct {
	Files                      []FileReport
	GloballyMissingSliceIndices []int
}

// Complete reports whether every file verified Complete.
func (r *Report) Complete() bool {
	for _, f := range r.Files {
		if f.Status != Complete {
			return false
		}
	}

	return true
}

// Engine performs slice-level PAR2 verification against a filesystem.
type Engine struct {
	fs afero.Fs
}

// NewEngine returns an Engine reading files from fs.
func NewEngine(fs afero.Fs) *Engine {
	return &Engine{fs: fs}
}

// Verify checks every file of rs against dir, in roster order. It never
// writes anything and is safe to call repeatedly.
func (e *Engine) Verify(ctx context.Context, rs *par2.RecoverySet, dir string) (*Report, error) {
	report := &Report{Files: make([]FileReport, 0, len(rs.Files))}

	globalOffset := 0
	for _, fd := range rs.Files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context error: %w", err)
		}

		path := filepath.Join(dir, fd.Name)

		fr, badGlobal, err := e.verifyFile(fd, rs.IFSC[fd.FileID], rs.SliceSize, path, globalOffset)
		if err != nil {
			return nil, fmt.Errorf("failed to verify %q: %w", fd.Name, err)
		}

		report.Files = append(report.Files, fr)
		report.GloballyMissingSliceIndices = append(report.GloballyMissingSliceIndices, badGlobal...)

		globalOffset += sliceCount(fd.Size, rs.SliceSize)
	}

	sort.Ints(report.GloballyMissingSliceIndices)

	return report, nil
}

func sliceCount(size int64, sliceSize uint64) int {
	if sliceSize == 0 || size <= 0 {
		return 0
	}

	return int((uint64(size) + sliceSize - 1) / sliceSize)
}

func (e *Engine) verifyFile(
	fd par2.FileDescriptor, slices []par2.SliceChecksum, sliceSize uint64, path string, globalOffset int,
) (FileReport, []int, error) {
	fr := FileReport{Name: fd.Name, GlobalOffset: globalOffset}

	info, err := e.fs.Stat(path)
	if err != nil {
		fr.Status = Missing

		return fr, allGlobal(globalOffset, sliceCount(fd.Size, sliceSize)), nil
	}

	if info.Size() != fd.Size {
		fr.Status = SizeMismatch

		return fr, allGlobal(globalOffset, sliceCount(fd.Size, sliceSize)), nil
	}

	full, err := hashWholeFile(e.fs, path)
	if err != nil {
		return FileReport{}, nil, err
	}

	if full == fd.HashFull {
		fr.Status = Complete

		return fr, nil, nil
	}

	if len(slices) == 0 {
		// No IFSC table to localize the damage; treat the whole file as bad.
		fr.Status = Partial
		n := sliceCount(fd.Size, sliceSize)
		fr.BadSlices = rangeInts(n)

		return fr, allGlobal(globalOffset, n), nil
	}

	bad, badGlobal, err := e.verifySlices(path, info.Size(), sliceSize, slices, globalOffset)
	if err != nil {
		return FileReport{}, nil, err
	}

	if len(bad) == 0 {
		fr.Status = Complete
	} else {
		fr.Status = Partial
		fr.BadSlices = bad
	}

	return fr, badGlobal, nil
}

func allGlobal(offset, n int) []int {
	return rangeIntsFrom(offset, n)
}

func rangeInts(n int) []int {
	return rangeIntsFrom(0, n)
}

func rangeIntsFrom(offset, n int) []int {
	if n <= 0 {
		return nil
	}

	out := make([]int, n)
	for i := range out {
		out[i] = offset + i
	}

	return out
}

// sliceReader abstracts the two ways a file's slices are read: mmap for
// large files, buffered ReadAt otherwise.
type sliceReader interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

func (e *Engine) openSliceReader(path string, size int64) (sliceReader, error) {
	if size >= mmapThreshold {
		if _, ok := e.fs.(*afero.OsFs); ok {
			r, err := mmap.Open(path)
			if err == nil {
				return r, nil
			}
			// Fall through to buffered reads if mmap is unavailable
			// (e.g. unsupported filesystem).
		}
	}

	f, err := e.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}

	return f, nil
}

func (e *Engine) verifySlices(
	path string, size int64, sliceSize uint64, checks []par2.SliceChecksum, globalOffset int,
) ([]int, []int, error) {
	r, err := e.openSliceReader(path, size)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var bad, badGlobal []int

	buf := make([]byte, sliceSize)

	for i, chk := range checks {
		n, err := r.ReadAt(buf, int64(i)*int64(sliceSize))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("failed to read slice %d of %q: %w", i, path, err)
		}

		for j := n; j < len(buf); j++ {
			buf[j] = 0 // zero-pad the final, partial slice
		}

		// MD5 is the sole authority for the good/bad verdict: the recorded
		// CRC32 is not consulted, so a CRC32 mismatch alone never marks a
		// slice bad and a CRC32 match never substitutes for the MD5 check.
		isBad := md5Sum(buf) != chk.MD5 //nolint:gosec

		if isBad {
			bad = append(bad, i)
			badGlobal = append(badGlobal, globalOffset+i)
		}
	}

	return bad, badGlobal, nil
}

func hashWholeFile(fs afero.Fs, path string) (par2.Hash, error) {
	f, err := fs.Open(path)
	if err != nil {
		return par2.Hash{}, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec

	if _, err := io.Copy(h, f); err != nil {
		return par2.Hash{}, fmt.Errorf("failed to hash %q: %w", path, err)
	}

	var out par2.Hash
	copy(out[:], h.Sum(nil))

	return out, nil
}

func md5Sum(b []byte) par2.Hash {
	sum := md5.Sum(b) //nolint:gosec

	var out par2.Hash
	copy(out[:], sum[:])

	return out
}
