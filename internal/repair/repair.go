// Package repair drives PAR2 repair: it verifies a recovery set, and if
// damage is found and repairable, reconstructs and writes the missing or
// corrupted slices using the Reed-Solomon engine.
package repair

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/schema"
	"github.com/par2lab/par2verify/internal/verify"
)

// Options controls a single repair run.
type Options struct {
	Workers      int
	NoParallel   bool
	PurgeBackups bool
	Verify       bool
}

// Service drives a repair attempt against one PAR2 index file.
type Service struct {
	fsys afero.Fs
	log  *logging.Logger
}

// NewService returns a Service bound to fsys.
func NewService(fsys afero.Fs, log *logging.Logger) *Service {
	return &Service{fsys: fsys, log: log}
}

// Repair verifies indexPath and, if needed and possible, reconstructs and
// writes the damaged or missing slices back to their target files. It
// returns the terminal [Result] and the exit code the CLI should use.
func (prog *Service) Repair(ctx context.Context, indexPath string, opts Options) (*Result, int, error) {
	dir := filepath.Dir(indexPath)
	logger := prog.log.With("op", "repair", "path", indexPath)

	vs := verify.NewService(prog.fsys, prog.log)

	rs, report, err := vs.Verify(ctx, indexPath, verify.Options{})
	if err != nil {
		return nil, schema.ExitCodeUnclassified, fmt.Errorf("failed to verify before repair: %w", err)
	}

	if report.Complete() {
		logger.Info("No repair needed")

		return &Result{Phase: Done, NoRepairNeeded: true, Report: report}, schema.ExitCodeSuccess, nil
	}

	var purger *backupPurger
	if opts.PurgeBackups {
		purger, err = newBackupPurger(prog.fsys, prog.log, dir)
		if err != nil {
			logger.Warn("Failed to create backup file purger (cannot --purge)", "error", err)
			purger = nil
		}
	}

	restorer, err := newBackupRestorer(prog.fsys, prog.log.Logger, dir)
	if err != nil {
		logger.Warn("Failed to create backup file restorer (cannot auto-restore on failed repair)", "error", err)
		restorer = nil
	}

	workers := opts.Workers
	if opts.NoParallel {
		workers = 1
	}

	engine := NewEngine(prog.fsys, workers, 0)

	result, err := engine.Run(ctx, rs, report, dir)
	if err != nil {
		return nil, schema.ExitCodeUnclassified, fmt.Errorf("repair failed: %w", err)
	}

	switch {
	case result.Reason != nil && errors.Is(result.Reason, ErrVerificationAfterRepair):
		logger.Error("Repair did not produce a matching file", "error", result.Reason)

		if restorer != nil {
			if err := restorer.Restore(); err != nil {
				logger.Warn("Failed to restore pre-repair backups", "error", err)
			} else {
				logger.Info("Restored pre-repair state from backups")
			}
		}

		return result, schema.ExitCodeUnrepairable, nil

	case result.Reason != nil:
		logger.Error("Insufficient recovery data to repair", "error", result.Reason)

		return result, schema.ExitCodeUnrepairable, nil

	case result.RepairSucceeded:
		logger.Info("Repair succeeded")

		if opts.Verify {
			if _, postReport, err := vs.Verify(ctx, indexPath, verify.Options{}); err != nil {
				logger.Warn("Post-repair verification failed to run", "error", err)
			} else if !postReport.Complete() {
				logger.Warn("Post-repair verification still reports damage")
			}
		}

		if purger != nil {
			if err := purger.Purge(); err != nil {
				logger.Warn("Failed to purge backup files", "error", err)
			}
		}

		return result, schema.ExitCodeSuccess, nil

	default:
		return result, schema.ExitCodeSuccess, nil
	}
}
