package repair

import (
	"context"
	"crypto/md5" //nolint:gosec
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/par2lab/par2verify/internal/par2"
	"github.com/par2lab/par2verify/internal/reedsolomon"
	"github.com/par2lab/par2verify/internal/verify"
)

// Phase names one step of the repair state machine of Engine.Run:
//
//	Scanning -> Reporting -> Planning -> Reconstructing -> Writing -> Verifying -> Done
type Phase int

const (
	Scanning Phase = iota
	Reporting
	Planning
	Reconstructing
	Writing
	Verifying
	Done
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "Scanning"
	case Reporting:
		return "Reporting"
	case Planning:
		return "Planning"
	case Reconstructing:
		return "Reconstructing"
	case Writing:
		return "Writing"
	case Verifying:
		return "Verifying"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// ErrVerificationAfterRepair is returned when a repaired file's whole-file
// MD5 still disagrees with its FileDescription after reconstruction and
// writing.
var ErrVerificationAfterRepair = errors.New("verification after repair failed")

// Result is the terminal outcome of a repair attempt.
type Result struct {
	Phase           Phase
	NoRepairNeeded  bool
	RepairSucceeded bool
	Report          *verify.Report
	Reason          error
}

// Engine drives the repair state machine against a filesystem.
type Engine struct {
	fs afero.Fs
	rs *reedsolomon.Engine
}

// NewEngine returns an Engine reading and writing files on fs. workers and
// cacheSlices are forwarded to [reedsolomon.NewEngine].
func NewEngine(fs afero.Fs, workers, cacheSlices int) *Engine {
	return &Engine{fs: fs, rs: reedsolomon.NewEngine(fs, workers, cacheSlices)}
}

// Run executes the full Scanning->Done state machine for the recovery set
// rs and its verification report, using dir as the base directory for
// target files.
func (e *Engine) Run(ctx context.Context, rs *par2.RecoverySet, report *verify.Report, dir string) (*Result, error) {
	// Scanning already happened by the time Run is called: rs/report are
	// the product of verify.Service.Verify. If everything already
	// verifies Complete, there is nothing to reconstruct.
	if report.Complete() {
		return &Result{Phase: Done, NoRepairNeeded: true, Report: report}, nil
	}

	// Reporting: decide whether there is enough recovery data at all.
	missing := report.GloballyMissingSliceIndices
	if len(missing) > len(rs.RecoverySlices) {
		return &Result{
			Phase:  Done,
			Report: report,
			Reason: fmt.Errorf("%w: need %d, have %d", reedsolomon.ErrInsufficientRecovery, len(missing), len(rs.RecoverySlices)),
		}, nil
	}

	// Planning: gather every global data slice, present or missing, into
	// one flat buffer set for the Reed-Solomon engine.
	total := totalSlices(rs)

	data, err := e.loadDataSlices(rs, report, dir, total)
	if err != nil {
		return nil, fmt.Errorf("failed to load data slices: %w", err)
	}

	// Reconstructing.
	if err := e.rs.Reconstruct(ctx, rs, data, missing); err != nil {
		return nil, fmt.Errorf("reconstruction failed: %w", err)
	}

	// Writing: push reconstructed slices back to their target files.
	if err := e.writeFiles(rs, report, dir, data); err != nil {
		return nil, fmt.Errorf("failed to write repaired files: %w", err)
	}

	// Verifying: recompute whole-file MD5 of every repaired file.
	for _, fr := range report.Files {
		if fr.Status == verify.Complete {
			continue
		}

		fd := fileDescByName(rs, fr.Name)

		path := filepath.Join(dir, fr.Name)

		sum, err := hashWholeFile(e.fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to verify repaired file %q: %w", fr.Name, err)
		}

		if sum != fd.HashFull {
			return &Result{
				Phase:  Done,
				Report: report,
				Reason: fmt.Errorf("%w: %q still mismatches after repair", ErrVerificationAfterRepair, fr.Name),
			}, nil
		}
	}

	return &Result{Phase: Done, RepairSucceeded: true, Report: report}, nil
}

func totalSlices(rs *par2.RecoverySet) int {
	n := 0
	for _, fd := range rs.Files {
		n += sliceCountOf(fd.Size, rs.SliceSize)
	}

	return n
}

func sliceCountOf(size int64, sliceSize uint64) int {
	if sliceSize == 0 || size <= 0 {
		return 0
	}

	return int((uint64(size) + sliceSize - 1) / sliceSize)
}

// loadDataSlices reads every file's current on-disk content into
// slice-sized buffers, zero-padding short reads. Slices belonging to
// Missing files are left as zeroed placeholders; a Partial file's bad
// slices hold whatever is on disk. The reconstruction engine overwrites
// every missing slice either way.
func (e *Engine) loadDataSlices(rs *par2.RecoverySet, report *verify.Report, dir string, total int) ([][]byte, error) {
	data := make([][]byte, total)
	sliceSize := int(rs.SliceSize)

	for i, fd := range rs.Files {
		fr := report.Files[i]
		n := sliceCountOf(fd.Size, rs.SliceSize)

		for j := range n {
			data[fr.GlobalOffset+j] = make([]byte, sliceSize)
		}

		if fr.Status == verify.Missing {
			continue
		}

		path := filepath.Join(dir, fd.Name)

		f, err := e.fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %q: %w", path, err)
		}

		for j := range n {
			buf := data[fr.GlobalOffset+j]

			_, err := f.ReadAt(buf, int64(j)*int64(sliceSize))
			if err != nil && !(errors.Is(err, io.EOF) && j == n-1) {
				// Retry once: a transient I/O error should not fail the
				// whole repair if a second read succeeds.
				if _, err = f.ReadAt(buf, int64(j)*int64(sliceSize)); err != nil &&
					!(errors.Is(err, io.EOF) && j == n-1) {
					f.Close()

					return nil, fmt.Errorf("failed to read slice %d of %q: %w", j, path, err)
				}
			}
			// A final slice legitimately reads less than sliceSize;
			// buf stays zero-padded beyond whatever was read.
		}

		f.Close()
	}

	return data, nil
}

// writeFiles writes the now-reconstructed slices of every non-Complete
// file back to disk. Any file that already exists (Partial, SizeMismatch)
// is first renamed aside to a numbered backup, matching the convention
// backupPurger and backupRestorer look for; the repaired content is then
// written fresh from data, which already holds every slice of the file
// (both the untouched good ones and the newly reconstructed ones). Every
// file is truncated to its declared length, discarding the final slice's
// zero-padding.
func (e *Engine) writeFiles(rs *par2.RecoverySet, report *verify.Report, dir string, data [][]byte) error {
	for i, fd := range rs.Files {
		fr := report.Files[i]
		if fr.Status == verify.Complete {
			continue
		}

		path := filepath.Join(dir, fd.Name)
		sliceSize := int64(rs.SliceSize)

		if fr.Status != verify.Missing {
			if err := e.backupExisting(path); err != nil {
				return fmt.Errorf("failed to back up %q before repair: %w", path, err)
			}
		}

		f, err := e.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %q for writing: %w", path, err)
		}

		n := sliceCountOf(fd.Size, rs.SliceSize)

		for _, j := range rangeAll(n) {
			buf := data[fr.GlobalOffset+j]

			offset := int64(j) * sliceSize
			wn := int64(len(buf))
			if offset+wn > fd.Size {
				wn = fd.Size - offset
			}

			if wn <= 0 {
				continue
			}

			if _, err := f.WriteAt(buf[:wn], offset); err != nil {
				f.Close()

				return fmt.Errorf("failed to write slice %d of %q: %w", j, path, err)
			}
		}

		if err := f.Truncate(fd.Size); err != nil {
			f.Close()

			return fmt.Errorf("failed to truncate %q: %w", path, err)
		}

		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %q: %w", path, err)
		}
	}

	return nil
}

// backupExisting renames path aside to the first available path.N, so the
// pre-repair content survives under the numbered-extension convention that
// backupPurger and backupRestorer recognize. A non-existent path is a no-op.
func (e *Engine) backupExisting(path string) error {
	if _, err := e.fs.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("failed to stat %q: %w", path, err)
	}

	for n := 1; ; n++ {
		backupPath := fmt.Sprintf("%s.%d", path, n)

		if _, err := e.fs.Stat(backupPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to stat %q: %w", backupPath, err)
			}

			if err := e.fs.Rename(path, backupPath); err != nil {
				return fmt.Errorf("failed to rename %q to %q: %w", path, backupPath, err)
			}

			return nil
		}
	}
}

func rangeAll(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}

	return out
}

func fileDescByName(rs *par2.RecoverySet, name string) par2.FileDescriptor {
	for _, fd := range rs.Files {
		if fd.Name == name {
			return fd
		}
	}

	return par2.FileDescriptor{}
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
