package retry

import "errors"

// ErrAborted indicates the retry loop stopped because its context was
// cancelled or its deadline passed before an attempt could run.
var ErrAborted = errors.New("retry aborted by context")
