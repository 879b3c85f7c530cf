package main

const rootUsage = "par2verify"

const rootHelpShort = "PAR2 recovery-set verifier and repairer"

const rootHelpLong = `par2verify - PAR2 recovery-set verifier and repairer

Parses a PAR2 index file and its companion volumes, verifies the data
files it protects against the embedded checksums, and reconstructs
corrupted or missing files using Reed-Solomon recovery slices when
asked to repair.

No directory scanning, no persisted state beyond the target data
files themselves: every invocation acts on one PAR2 index file.

See 'par2verify <command> --help' for command-specific information.`

const verifyUsage = "verify [flags] <index.par2>"

const verifyHelpShort = "Verifies the files protected by a PAR2 recovery set"

const verifyHelpLong = `Parses the PAR2 recovery set and checks every protected file
against its recorded whole-file and per-slice checksums.

Files that match their recorded length get a cheap whole-file MD5
comparison first; only a mismatch falls back to per-slice MD5 and
CRC32 checks, which also localize the damage to individual slices.

A --config YAML file can supply a default --log-level; explicit
flags always take precedence over the file.

Exit codes: 0 complete, 1 repairable, 2 not repairable, >=3 error.`

const verifyHelpExample = `
Verify a recovery set, reporting one line per file:
  par2verify verify /mnt/storage/archive.par2

Verify quietly, only the exit code matters:
  par2verify verify -q /mnt/storage/archive.par2`

const repairUsage = "repair [flags] <index.par2>"

const repairHelpShort = "Repairs files using a PAR2 recovery set's recovery slices"

const repairHelpLong = `Verifies the recovery set and, if corruption is found and
sufficient recovery slices exist, reconstructs the missing or
damaged data and writes it back to the target files.

Any target file that already exists on disk is renamed aside to a
numbered backup (path.1, path.2, ...) before the repaired content is
written fresh. Every repaired file is truncated to its recorded
length and its whole-file MD5 is re-checked before the repair is
reported as successful; if that re-check fails, the pre-repair
backups are restored automatically. --purge removes backups left
over from a successful repair instead.

A --config YAML file can supply defaults for --threads, --purge and
--log-level; explicit flags always take precedence over the file.

Exit codes: 0 repaired or already complete, 2 insufficient recovery
or post-repair verification mismatch, >=3 error.`

const repairHelpExample = `
Repair a recovery set, using all CPUs for reconstruction:
  par2verify repair /mnt/storage/archive.par2

Repair serially and purge leftover numbered backup files:
  par2verify repair --no-parallel -p /mnt/storage/archive.par2

Repair with 4 worker threads, re-verify afterward:
  par2verify repair -t 4 -v /mnt/storage/archive.par2

Repair using defaults from a config file:
  par2verify repair -c /etc/par2verify.yaml /mnt/storage/archive.par2`

const infoUsage = "info [flags] <index.par2>"

const infoHelpShort = "Prints the structure of a PAR2 recovery set"

const infoHelpLong = `Parses the PAR2 recovery set and prints its slice size, file
roster and recovery slice count. No file content is read or
checked; this is purely a structural summary of the index.`

const infoHelpExample = `
Print a recovery set's structure as text:
  par2verify info /mnt/storage/archive.par2

Print it as JSON instead:
  par2verify info --json /mnt/storage/archive.par2`
