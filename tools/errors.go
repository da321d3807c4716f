package tools

import "errors"

// Sentinel errors for the tool catalog.
var (
	ErrEmptyID = errors.New("tool id is empty")
)
