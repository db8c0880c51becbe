package authz

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInactiveActor indicates the actor is deactivated in the directory.
	ErrInactiveActor = errors.New("authz: inactive actor")
	// ErrUnknownModuleAction indicates a (module, action) pair outside the catalog.
	ErrUnknownModuleAction = errors.New("authz: unknown module/action")
	// ErrInvalidGrantTuple indicates a malformed role/module/action on setGrant.
	ErrInvalidGrantTuple = errors.New("authz: invalid grant tuple")
	// ErrStoreUnavailable indicates the persistence collaborator failed.
	ErrStoreUnavailable = errors.New("authz: store unavailable")
	// ErrStoreTimeout indicates a store call exceeded its deadline. It also
	// matches ErrStoreUnavailable.
	ErrStoreTimeout = fmt.Errorf("%w: timeout", ErrStoreUnavailable)
	// ErrDirectoryUnavailable indicates the directory collaborator failed.
	ErrDirectoryUnavailable = errors.New("authz: directory unavailable")
	// ErrDirectoryTimeout indicates a directory call exceeded its deadline.
	// It also matches ErrDirectoryUnavailable.
	ErrDirectoryTimeout = fmt.Errorf("%w: timeout", ErrDirectoryUnavailable)
	// ErrActorNotFound indicates the directory has no such actor.
	ErrActorNotFound = errors.New("authz: actor not found")
)

func invalidGrant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGrantTuple, fmt.Sprintf(format, args...))
}

func unknownModuleAction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnknownModuleAction, fmt.Sprintf(format, args...))
}

// StoreError classifies a failure from a grant store backend. Context
// deadline and cancellation map to ErrStoreTimeout; everything else maps to
// ErrStoreUnavailable. Errors already classified are returned unchanged.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrInvalidGrantTuple) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", ErrStoreTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// DirectoryError classifies a failure from the directory collaborator.
// Deadline and cancellation map to ErrDirectoryTimeout.
func DirectoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrActorNotFound) || errors.Is(err, ErrDirectoryUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDirectoryUnavailable, op, err)
}
