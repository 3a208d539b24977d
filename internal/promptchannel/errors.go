package promptchannel

import "errors"

// ErrCancelled is returned by Ask when ctx is cancelled before a response
// arrives. The request file is rewritten with its cancelled flag set
// (spec.md section 4.5).
var ErrCancelled = errors.New("promptchannel: request cancelled")
