package gemini

import (
	"errors"
	"fmt"
)

// ErrStreamIdle reports that the upstream connection produced no bytes
// within the idle watchdog interval. This is a liveness guard, not a total
// duration timeout: any byte arrival resets the clock.
var ErrStreamIdle = errors.New("upstream stream idle timeout")

// ErrEmptyEmbedding reports that the provider returned no embedding vector.
var ErrEmptyEmbedding = errors.New("empty embedding response")

// ConnectError reports a non-success HTTP status when opening a request
// against the Generative Language API. It carries the upstream status code
// and response body; connection-open failures are fatal and never retried.
type ConnectError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
