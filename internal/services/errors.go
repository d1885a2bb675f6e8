package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying failures across the sync and seeding paths.
var (
	// ErrNetwork covers manifest and indexer HTTP failures. Retried with
	// backoff, surfaced and logged, never fatal to the process.
	ErrNetwork = errors.New("network error")
	// ErrTransfer covers non-zero exits and timeouts of the external
	// transfer executable.
	ErrTransfer = errors.New("transfer error")
	// ErrIntegrity covers content-hash mismatches.
	ErrIntegrity = errors.New("integrity error")
	// ErrResource covers insufficient disk space.
	ErrResource = errors.New("resource error")
	// ErrConfiguration covers malformed manifest entries and path traversal.
	ErrConfiguration = errors.New("configuration error")
	// ErrTimeout covers exceeded deadlines on blocking external calls.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
