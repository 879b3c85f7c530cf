package par2

import (
	"errors"
	"fmt"
)

// ErrSetIncomplete is returned by [AssembleSet] when a set is missing its
// MainPacket, is missing a FileDescription for a FileId the MainPacket
// lists, or otherwise cannot be assembled into a usable [RecoverySet].
var ErrSetIncomplete = errors.New("recovery set incomplete")

// errDuplicateFileID is returned when the same FileId appears twice in a
// MainPacket's recoverable roster.
var errDuplicateFileID = errors.New("duplicate file id in main packet")

// errIFSCLengthMismatch is returned when a file's IFSC slice count does not
// match the number of slices implied by its length and the set's slice size.
var errIFSCLengthMismatch = errors.New("ifsc slice count mismatch")

// FileDescriptor is one recoverable file's identity and metadata, as
// carried by its FileDesc packet, placed in Main-Packet order within a
// [RecoverySet].
type FileDescriptor struct {
	FileID   Hash
	Name     string
	Size     int64
	HashFull Hash
	Hash16k  Hash
}

// RecoverySet is the immutable, assembled view of one PAR2 recovery set:
// everything the Verification Engine and Reed-Solomon Engine need, with no
// recovery slice payloads yet read into memory.
type RecoverySet struct {
	SetID          Hash
	SliceSize      uint64
	Files          []FileDescriptor            // Recoverable files, in Main-Packet order
	IFSC           map[Hash][]SliceChecksum     // Per-file slice checksums, by FileID
	RecoverySlices map[uint32]RecoverySliceRef  // Recovery slice references, by exponent
	Creator        *CreatorPacket
}

// AssembleSet builds the immutable [RecoverySet] from a deduplicated,
// merged [Set]. It is fatal for this set (though a caller parsing several
// sets from the same volumes may still succeed on another) when: there is
// no MainPacket, a FileDescription is missing for a FileId the MainPacket
// lists, a FileId is duplicated within the MainPacket's roster, or a
// file's IFSC slice count does not match its length.
func AssembleSet(set Set) (*RecoverySet, error) {
	if set.MainPacket == nil {
		return nil, fmt.Errorf("%w: no main packet", ErrSetIncomplete)
	}

	byFileID := make(map[Hash]FilePacket, len(set.RecoverySet))
	for _, fp := range set.RecoverySet {
		byFileID[fp.FileID] = fp
	}

	seen := make(map[Hash]struct{}, len(set.MainPacket.RecoveryIDs))
	files := make([]FileDescriptor, 0, len(set.MainPacket.RecoveryIDs))

	for _, id := range set.MainPacket.RecoveryIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %x", errDuplicateFileID, id)
		}
		seen[id] = struct{}{}

		fp, ok := byFileID[id]
		if !ok {
			return nil, fmt.Errorf("%w: missing file description for %x", ErrSetIncomplete, id)
		}

		if err := validateIFSCLength(fp, set.MainPacket.SliceSize, set.IFSC[id]); err != nil {
			return nil, err
		}

		files = append(files, FileDescriptor{
			FileID:   fp.FileID,
			Name:     fp.Name,
			Size:     fp.Size,
			HashFull: fp.Hash,
			Hash16k:  fp.Hash16k,
		})
	}

	return &RecoverySet{
		SetID:          set.SetID,
		SliceSize:      set.MainPacket.SliceSize,
		Files:          files,
		IFSC:           set.IFSC,
		RecoverySlices: set.RecoverySlices,
		Creator:        set.Creator,
	}, nil
}

// validateIFSCLength checks that a file's recorded slice checksums match
// the number of slices its length implies, given the set's slice size.
// A zero-length file is expected to carry zero slice checksums. A file
// with no IFSC packet at all is tolerated here; the Verification Engine
// falls back to the whole-file hash for such files.
func validateIFSCLength(fp FilePacket, sliceSize uint64, slices []SliceChecksum) error {
	if slices == nil {
		return nil
	}

	expected := 0
	if fp.Size > 0 && sliceSize > 0 {
		expected = int((uint64(fp.Size) + sliceSize - 1) / sliceSize)
	}

	if len(slices) != expected {
		return fmt.Errorf("%w: file=%x expected=%d got=%d", errIFSCLengthMismatch, fp.FileID, expected, len(slices))
	}

	return nil
}
