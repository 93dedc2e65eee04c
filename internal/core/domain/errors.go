package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed queries, filters or configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable marks a vector store that cannot be reached or is
	// erroring; without dense results there is no recall guarantee, so this
	// fails the request.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrTemporary marks transient backend failures worth retrying upstream.
	ErrTemporary = errors.New("temporary failure")
	// ErrIndexNotReady marks a lexical index that has never been built.
	// Callers treat this as degraded, never fatal.
	ErrIndexNotReady = errors.New("lexical index not built")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
