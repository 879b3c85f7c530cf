/*
par2verify parses PAR2 recovery sets, verifies the files they protect
against the embedded checksums, and repairs corrupted or missing data
using Reed-Solomon reconstruction from the recovery slices.

Every invocation targets one PAR2 index file; there is no directory
scanning and no state persisted beyond the target data files.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/par2lab/par2verify/internal/info"
	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/repair"
	"github.com/par2lab/par2verify/internal/schema"
	"github.com/par2lab/par2verify/internal/verify"
)

func wrapArgsError(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", schema.ErrExitBadInvocation, err)
		}

		return nil
	}
}

// newRootCmd returns the primary [cobra.Command] pointer for the program.
func newRootCmd(ctx context.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               rootUsage,
		Short:             rootHelpShort,
		Long:              rootHelpLong,
		Version:           schema.ProgramVersion,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", schema.ErrExitBadInvocation, err)
	})

	rootCmd.AddCommand(newVerifyCmd(ctx), newRepairCmd(ctx), newInfoCmd(ctx))

	return rootCmd
}

func newLogSettings(quiet bool) logging.Options {
	var ls logging.Options

	level := "info"
	if quiet {
		level = "warn"
	}

	_ = ls.LogLevel.Set(level)
	ls.Logout = os.Stderr
	ls.Stdout = os.Stdout
	ls.Stderr = os.Stderr

	return ls
}

func printFileReport(out *os.File, quiet bool, report *verify.Report) {
	if quiet {
		return
	}

	bar := progressbar.NewOptions(len(report.Files),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("verifying"),
		progressbar.OptionClearOnFinish(),
	)

	for _, fr := range report.Files {
		_ = bar.Add(1)
		fmt.Fprintf(out, "%s: %s\n", fr.Name, fr.Status.String())
	}
}

// newVerifyCmd returns the "verify" [cobra.Command] pointer for the program.
func newVerifyCmd(ctx context.Context) *cobra.Command {
	var quiet, verbose bool
	var configPath string

	fsys := afero.NewOsFs()
	logSettings := newLogSettings(false)

	verifyCmd := &cobra.Command{
		Use:     verifyUsage,
		Short:   verifyHelpShort,
		Long:    verifyHelpLong,
		Example: verifyHelpExample,
		Args:    wrapArgsError(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			setFlags := make(map[string]bool)
			cmd.Flags().Visit(func(f *pflag.Flag) {
				setFlags[f.Name] = true
			})

			if quiet && !setFlags["log-level"] {
				_ = logSettings.LogLevel.Set("warn")
			}

			if configPath == "" {
				return nil
			}

			cfg, err := parseConfigFile(fsys, configPath)
			if err != nil {
				return fmt.Errorf("%w: failed to parse --config file: %w", schema.ErrExitBadInvocation, err)
			}

			if cfg.Verify != nil {
				cfg.Verify.Merge(&logSettings, setFlags)
			}

			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			log := logging.NewLogger(logSettings)
			svc := verify.NewService(fsys, log)

			rs, report, err := svc.Verify(ctx, args[0], verify.Options{Quiet: quiet, Verbose: verbose})
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrExitUnclassified, err)
			}

			if verbose {
				printFileReport(os.Stdout, quiet, report)
			}

			if !quiet {
				if report.Complete() {
					fmt.Fprintln(os.Stdout, "All files verified complete.")
				} else {
					fmt.Fprintf(os.Stdout, "%d slice(s) need repair.\n", len(report.GloballyMissingSliceIndices))
				}
			}

			code := verify.ExitCode(rs, report)
			if code != schema.ExitCodeSuccess {
				switch code {
				case schema.ExitCodeRepairable:
					return schema.ErrExitRepairable
				default:
					return schema.ErrExitUnrepairable
				}
			}

			return nil
		},
	}

	verifyCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	verifyCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print per-file verification status")
	verifyCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a par2verify YAML configuration file")
	verifyCmd.Flags().VarP(&logSettings.LogLevel, "log-level", "l", "minimum level of emitted logs (debug|info|warn|error)")
	verifyCmd.Flags().BoolVar(&logSettings.WantJSON, "json", false, "emit structured logs in JSON format")

	return verifyCmd
}

// newRepairCmd returns the "repair" [cobra.Command] pointer for the program.
func newRepairCmd(ctx context.Context) *cobra.Command {
	var quiet, verbose, noParallel, purge bool
	var workers int
	var configPath string

	fsys := afero.NewOsFs()
	logSettings := newLogSettings(false)

	opts := repair.Options{}

	repairCmd := &cobra.Command{
		Use:     repairUsage,
		Short:   repairHelpShort,
		Long:    repairHelpLong,
		Example: repairHelpExample,
		Args:    wrapArgsError(cobra.ExactArgs(1)),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			setFlags := make(map[string]bool)
			cmd.Flags().Visit(func(f *pflag.Flag) {
				setFlags[f.Name] = true
			})

			opts.Workers = workers
			opts.NoParallel = noParallel
			opts.PurgeBackups = purge
			opts.Verify = verbose

			if quiet && !setFlags["log-level"] {
				_ = logSettings.LogLevel.Set("warn")
			}

			if configPath == "" {
				return nil
			}

			cfg, err := parseConfigFile(fsys, configPath)
			if err != nil {
				return fmt.Errorf("%w: failed to parse --config file: %w", schema.ErrExitBadInvocation, err)
			}

			if cfg.Repair != nil {
				cfg.Repair.Merge(&opts, &logSettings, setFlags)
			}

			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			log := logging.NewLogger(logSettings)
			svc := repair.NewService(fsys, log)

			result, code, err := svc.Repair(ctx, args[0], opts)
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrExitUnclassified, err)
			}

			if !quiet {
				switch {
				case result.NoRepairNeeded:
					fmt.Fprintln(os.Stdout, "No repair needed.")
				case result.RepairSucceeded:
					fmt.Fprintln(os.Stdout, "Repair succeeded.")
				case result.Reason != nil:
					fmt.Fprintf(os.Stdout, "Repair failed: %v\n", result.Reason)
				}
			}

			if code != schema.ExitCodeSuccess {
				return schema.ErrExitUnrepairable
			}

			return nil
		},
	}

	repairCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	repairCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "re-verify the recovery set after repair")
	repairCmd.Flags().IntVarP(&workers, "threads", "t", 0, "worker count for reconstruction (default: all CPUs)")
	repairCmd.Flags().BoolVar(&noParallel, "no-parallel", false, "force serial reconstruction")
	repairCmd.Flags().BoolVarP(&purge, "purge", "p", false, "remove obsolete numbered backup files after a successful repair")
	repairCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a par2verify YAML configuration file")
	repairCmd.Flags().VarP(&logSettings.LogLevel, "log-level", "l", "minimum level of emitted logs (debug|info|warn|error)")
	repairCmd.Flags().BoolVar(&logSettings.WantJSON, "json", false, "emit structured logs in JSON format")

	return repairCmd
}

func newInfoCmd(_ context.Context) *cobra.Command {
	var wantJSON bool

	fsys := afero.NewOsFs()

	infoCmd := &cobra.Command{
		Use:     infoUsage,
		Short:   infoHelpShort,
		Long:    infoHelpLong,
		Example: infoHelpExample,
		Args:    wrapArgsError(cobra.ExactArgs(1)),
		RunE: func(_ *cobra.Command, args []string) error {
			log := logging.NewLogger(newLogSettings(false))
			svc := info.NewService(fsys, log)

			summary, err := svc.Describe(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", schema.ErrExitUnclassified, err)
			}

			if wantJSON {
				return summary.WriteJSON(os.Stdout) //nolint:wrapcheck
			}

			return summary.WriteText(os.Stdout) //nolint:wrapcheck
		},
	}

	infoCmd.Flags().BoolVar(&wantJSON, "json", false, "output as JSON instead of text")

	return infoCmd
}

func main() {
	var exitCode int
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n\n", r)
			debug.PrintStack()
			exitCode = schema.ExitCodeUnclassified
		}
		os.Exit(exitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	rootCmd := newRootCmd(ctx)
	err := rootCmd.Execute()
	exitCode = schema.ExitCodeFor(err)
}
