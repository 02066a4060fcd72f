package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateUID is wrapped by *DuplicateUIDError when a requested UID was already in use.
	// The instance is still added, under the UID reported in the error.
	ErrDuplicateUID = errors.New("duplicate uid")
	// ErrNotFound is returned for UIDs that are absent or being removed.
	ErrNotFound = errors.New("instance not found")
	// ErrInvalidKind is returned when an instance carries an unknown kind tag.
	ErrInvalidKind = errors.New("invalid instance kind")
	// ErrBufferGrowth is returned when the device transform buffer could not be reallocated or written.
	// The registry keeps its state and retries on the next sync.
	ErrBufferGrowth = errors.New("transform buffer growth failed")
	// ErrInvalidFrame is returned when SyncGPUBuffer is called without a live frame.
	ErrInvalidFrame = errors.New("sync requires a live frame")
)

// DuplicateUIDError reports a requested UID that collided with a live instance.
type DuplicateUIDError struct {
	Requested uint32
	Assigned  uint32
}

func (e *DuplicateUIDError) Error() string {
	return fmt.Sprintf("uid %d already in use, assigned %d", e.Requested, e.Assigned)
}

func (e *DuplicateUIDError) Unwrap() error {
	return ErrDuplicateUID
}

// Duplicate records one renumbering made by Add so the map can be repaired later.
type Duplicate struct {
	Requested uint32
	Assigned  uint32
}
