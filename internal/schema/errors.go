package schema

import "errors"

var (
	ErrExitBadInvocation = errors.New("bad invocation of the program")         // [ExitCodeBadInvocation]
	ErrExitRepairable    = errors.New("files are corrupted, but repairable")   // [ExitCodeRepairable]
	ErrExitUnrepairable  = errors.New("files are corrupted, but unrepairable") // [ExitCodeUnrepairable]
	ErrExitUnclassified  = errors.New("unclassified error")                   // [ExitCodeUnclassified]
)

var exitErrorsByPriority = []struct {
	err  error
	code int
}{
	{ErrExitUnclassified, ExitCodeUnclassified},   // 4
	{ErrExitBadInvocation, ExitCodeBadInvocation}, // 3
	{ErrExitUnrepairable, ExitCodeUnrepairable},   // 2
	{ErrExitRepairable, ExitCodeRepairable},       // 1
}

func ExitCodeFor(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	for _, entry := range exitErrorsByPriority {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}

	return ExitCodeUnclassified
}
