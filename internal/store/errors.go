package store

import "errors"

// ErrUnwritable is returned when the run directory cannot be created or
// written to. Fatal for the Run, per spec.md section 4.1/7.
var ErrUnwritable = errors.New("store: run directory is not writable")
