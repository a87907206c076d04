package models

import "errors"

// ErrTypeMismatch reports a malformed task or chain step collection.
var ErrTypeMismatch = errors.New("type mismatch")
