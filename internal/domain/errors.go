package domain

import "errors"

// ErrUserNotFound is returned when a PACS username has no users row.
var ErrUserNotFound = errors.New("user not found")
