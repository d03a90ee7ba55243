package domain

import "errors"

// ErrNotFound indicates resource not found
var ErrNotFound = errors.New("resource not found")
