// Package verify implements the native PAR2 verification engine: parsing a
// recovery set's packets, checking every source file's whole-file and
// per-slice hashes against it, and reporting which slices (if any) a repair
// pass would need to reconstruct.
package verify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/par2"
	"github.com/par2lab/par2verify/internal/schema"
)

// Options controls a single verification run.
type Options struct {
	Quiet   bool
	Verbose bool
}

// Service drives verification of one PAR2 recovery set against the
// filesystem that holds its data files.
type Service struct {
	fsys afero.Fs
	log  *logging.Logger
}

// NewService returns a Service bound to fsys.
func NewService(fsys afero.Fs, log *logging.Logger) *Service {
	return &Service{fsys: fsys, log: log}
}

// Verify parses indexPath (and any companion volumes matched by
// [par2.ParseFileSet]'s glob), assembles the recovery set, and checks every
// described file against the directory indexPath lives in.
func (prog *Service) Verify(ctx context.Context, indexPath string, _ Options) (*par2.RecoverySet, *Report, error) {
	dir := filepath.Dir(indexPath)

	logger := prog.log.With("op", "verify", "path", indexPath)
	logger.Info("Parsing PAR2 packets")

	fileSet, err := par2.ParseFileSet(prog.fsys, indexPath, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse PAR2 set: %w", err)
	}

	if len(fileSet.SetsMerged) == 0 {
		return nil, nil, fmt.Errorf("%w: no recovery sets found in %q", schema.ErrExitBadInvocation, indexPath)
	}

	rs, err := par2.AssembleSet(fileSet.SetsMerged[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to assemble recovery set: %w", err)
	}

	logger.Info("Verifying files", "count", len(rs.Files), "sliceSize", rs.SliceSize)

	report, err := NewEngine(prog.fsys).Verify(ctx, rs, dir)
	if err != nil {
		return rs, nil, fmt.Errorf("failed to verify recovery set: %w", err)
	}

	for _, fr := range report.Files {
		switch fr.Status {
		case Complete:
			logger.Debug("File verified", "file", fr.Name, "status", fr.Status.String())
		default:
			logger.Warn("File verification failed", "file", fr.Name, "status", fr.Status.String(),
				"badSlices", len(fr.BadSlices))
		}
	}

	return rs, report, nil
}

// ExitCode returns the exit code this package's CLI contract assigns to a
// completed verification report: 0 complete, 1 repairable, 2 not
// repairable.
func ExitCode(rs *par2.RecoverySet, report *Report) int {
	if report.Complete() {
		return schema.ExitCodeSuccess
	}

	if len(report.GloballyMissingSliceIndices) <= len(rs.RecoverySlices) {
		return 1
	}

	return 2
}
