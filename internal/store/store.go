// Package store defines storage-level errors shared by repository
// implementations and the services consuming them.
package store

import "errors"

// ErrNotFound is returned by repositories when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")
