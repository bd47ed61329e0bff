package models

import (
	"errors"
	"fmt"

	"bizreg/pkg/platform/sentinel"
)

// Import failure taxonomy. Every fatal error leaves the previously published
// generation live; malformed dump lines are counted, never returned.
var (
	ErrTransientNetwork = fmt.Errorf("dump download failed: %w", sentinel.ErrUnavailable)
	ErrStagingWrite     = errors.New("staging write failed")
	ErrEmptyIdentifiers = errors.New("identifier relation is empty")
	ErrEmptyResolution  = errors.New("resolution produced no companies")
	ErrSwapUnavailable  = fmt.Errorf("generation swap lock unavailable: %w", sentinel.ErrConflict)
	ErrAlreadyRunning   = fmt.Errorf("import already running: %w", sentinel.ErrConflict)
)
