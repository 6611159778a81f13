// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the operation collides with existing state,
// such as a hypervisor identity already bound to another consumer or
// a product still referenced by pools.
var ErrConflict = errors.New("conflict: resource already bound or referenced")

// ErrValidation indicates an entity was submitted in a state that cannot
// produce a valid record or certificate. Surfaced synchronously at
// create/update time, never deferred to regeneration.
var ErrValidation = errors.New("validation failed")
