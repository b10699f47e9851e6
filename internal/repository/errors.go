package repository

import "errors"

// ErrDuplicate is returned when an insert collides with a unique key: an
// email already registered, a second private chat for the same pair, or a
// membership row that already exists.
var ErrDuplicate = errors.New("duplicate key")
