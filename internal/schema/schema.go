package schema

// ProgramVersion is the program version as filled in by the Makefile.
var ProgramVersion = "devel"

const (
	// ExitCodeSuccess is returned by verify when every file verifies
	// Complete, and by repair when no repair was needed or one
	// succeeded.
	ExitCodeSuccess int = 0

	// ExitCodeRepairable is verify-only: corruption was found but
	// sufficient recovery data exists to fix it.
	ExitCodeRepairable int = 1

	// ExitCodeUnrepairable means, for verify, that corruption was found
	// with insufficient recovery data, and for repair, that there was
	// not enough recovery data to complete the repair.
	ExitCodeUnrepairable int = 2

	// ExitCodeBadInvocation is a CLI usage error (bad arguments, missing
	// index file), distinct from a verification/repair result.
	ExitCodeBadInvocation int = 3

	// ExitCodeUnclassified is any other unexpected failure.
	ExitCodeUnclassified int = 4

	Par2Extension string = ".par2"
)
