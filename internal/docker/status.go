package docker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Exit codes the sync worker is known to terminate with on failure:
// 1 is the worker's own error exit, 137 is SIGKILL (usually the OOM killer).
var failureExitCodes = map[int]bool{
	1:   true,
	137: true,
}

// UnknownStatusError reports a terminal container status outside the known
// vocabulary. Mapping fails loud rather than guessing an outcome.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unrecognized terminal container status %q", e.Status)
}

// mapStatus translates the Engine's human-readable container status
// ("Exited (0) 2 minutes ago", "Up 4 seconds", ...) to a JobStatus.
func mapStatus(containerStatus string) (domain.JobStatus, error) {
	s := strings.TrimSpace(containerStatus)
	if s == "" {
		return "", &UnknownStatusError{Status: containerStatus}
	}

	if !strings.HasPrefix(s, "Exited (") {
		return domain.JobStatusRunning, nil
	}

	code, err := extractExitCode(s)
	if err != nil {
		return "", err
	}

	switch {
	case code == 0:
		return domain.JobStatusSuccess, nil
	case failureExitCodes[code]:
		return domain.JobStatusFailed, nil
	default:
		return "", &UnknownStatusError{Status: containerStatus}
	}
}

func extractExitCode(status string) (int, error) {
	open := strings.Index(status, "(")
	closing := strings.Index(status, ")")
	if open < 0 || closing < open {
		return 0, &UnknownStatusError{Status: status}
	}
	code, err := strconv.Atoi(status[open+1 : closing])
	if err != nil {
		return 0, &UnknownStatusError{Status: status}
	}
	return code, nil
}
