// Package info prints the structure of a parsed PAR2 recovery set without
// performing any verification: slice size, file roster, and recovery
// slice count.
package info

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/par2"
)

// FileEntry is one file's roster entry.
type FileEntry struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	SliceCount int    `json:"slice_count"`
}

// Summary is the complete, read-only structure of a recovery set.
type Summary struct {
	SetID          string      `json:"set_id"`
	SliceSize      uint64      `json:"slice_size"`
	Files          []FileEntry `json:"files"`
	RecoverySlices int         `json:"recovery_slice_count"`
	Creator        string      `json:"creator,omitempty"`
}

// Service builds an info [Summary] from a PAR2 index file.
type Service struct {
	fsys afero.Fs
	log  *logging.Logger
}

// NewService returns a Service bound to fsys.
func NewService(fsys afero.Fs, log *logging.Logger) *Service {
	return &Service{fsys: fsys, log: log}
}

// Describe parses indexPath and its companion volumes and summarizes the
// resulting recovery set. No file content is read or verified.
func (prog *Service) Describe(indexPath string) (*Summary, error) {
	fileSet, err := par2.ParseFileSet(prog.fsys, indexPath, true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PAR2 set: %w", err)
	}

	if len(fileSet.SetsMerged) == 0 {
		return nil, fmt.Errorf("no recovery sets found in %q", indexPath)
	}

	rs, err := par2.AssembleSet(fileSet.SetsMerged[0])
	if err != nil {
		return nil, fmt.Errorf("failed to assemble recovery set: %w", err)
	}

	summary := &Summary{
		SetID:          fmt.Sprintf("%x", rs.SetID[:]),
		SliceSize:      rs.SliceSize,
		Files:          make([]FileEntry, len(rs.Files)),
		RecoverySlices: len(rs.RecoverySlices),
	}

	for i, fd := range rs.Files {
		summary.Files[i] = FileEntry{
			Name:       fd.Name,
			Size:       fd.Size,
			SliceCount: sliceCount(fd.Size, rs.SliceSize),
		}
	}

	if rs.Creator != nil {
		summary.Creator = rs.Creator.Text
	}

	return summary, nil
}

func sliceCount(size int64, sliceSize uint64) int {
	if sliceSize == 0 || size <= 0 {
		return 0
	}

	return int((uint64(size) + sliceSize - 1) / sliceSize)
}

// WriteJSON writes the summary to w as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	return nil
}

// WriteText writes a concise human-readable rendering of the summary to w.
func (s *Summary) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Set ID: %s\n", s.SetID); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	fmt.Fprintf(w, "Slice size: %d bytes\n", s.SliceSize)
	fmt.Fprintf(w, "Recovery slices available: %d\n", s.RecoverySlices)

	if s.Creator != "" {
		fmt.Fprintf(w, "Created by: %s\n", s.Creator)
	}

	fmt.Fprintf(w, "Files (%d):\n", len(s.Files))

	for _, f := range s.Files {
		fmt.Fprintf(w, "  %s  %d bytes  %d slices\n", f.Name, f.Size, f.SliceCount)
	}

	return nil
}
