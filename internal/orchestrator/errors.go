package orchestrator

import "errors"

// ErrMissingQuery rejects a request before any upstream stream is opened.
var ErrMissingQuery = errors.New("body requires 'query' field")
