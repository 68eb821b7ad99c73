package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// dataPrefix marks payload-bearing lines in the SSE byte stream.
var dataPrefix = []byte("data:")

// doneSentinel terminates some provider streams; it carries no payload.
var doneSentinel = []byte("[DONE]")

// Stream is one live streaming generation connection.
//
// Chunks are yielded in arrival order by Events. The stream enforces an
// idle watchdog: if no bytes arrive within the configured interval the
// iterator yields ErrStreamIdle and stops. Close is idempotent and safe to
// call while Events is running; Events closes the stream when it returns.
type Stream struct {
	body        io.ReadCloser
	idleTimeout time.Duration
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newStream(body io.ReadCloser, idleTimeout time.Duration, logger *slog.Logger) *Stream {
	return &Stream{body: body, idleTimeout: idleTimeout, logger: logger}
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// readFrame is one body read handed from the reader goroutine to Events.
type readFrame struct {
	data []byte
	err  error
}

// Events returns an iterator over decoded stream chunks.
//
// Parsing rule: bytes accumulate in a buffer and split on newline; only
// lines beginning with "data:" are payload-bearing; blank lines and the
// "[DONE]" sentinel are skipped; every remaining payload is one JSON chunk.
// A payload that fails to decode is logged and skipped: occasional
// malformed keep-alive frames are expected from upstream SSE providers and
// must not abort the stream.
//
// The iterator terminates with a non-nil error on watchdog expiry, context
// cancellation, or a transport failure; it terminates cleanly on EOF.
func (s *Stream) Events(ctx context.Context) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		defer s.Close()

		done := make(chan struct{})
		defer close(done)

		frames := make(chan readFrame)
		go s.readLoop(frames, done)

		watchdog := time.NewTimer(s.idleTimeout)
		defer watchdog.Stop()

		var buf []byte
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return

			case <-watchdog.C:
				yield(nil, ErrStreamIdle)
				return

			case frame := <-frames:
				if frame.err != nil {
					if errors.Is(frame.err, io.EOF) {
						// Flush a trailing line that arrived without a newline.
						if chunk := s.parseLine(buf); chunk != nil {
							yield(chunk, nil)
						}
						return
					}
					yield(nil, fmt.Errorf("reading model stream: %w", frame.err))
					return
				}

				// Any byte arrival resets the watchdog.
				if !watchdog.Stop() {
					select {
					case <-watchdog.C:
					default:
					}
				}
				watchdog.Reset(s.idleTimeout)

				buf = append(buf, frame.data...)
				for {
					i := bytes.IndexByte(buf, '\n')
					if i < 0 {
						break
					}
					line := buf[:i]
					buf = buf[i+1:]

					chunk := s.parseLine(line)
					if chunk == nil {
						continue
					}
					if !yield(chunk, nil) {
						return
					}
				}
			}
		}
	}
}

// readLoop reads the response body and hands frames to Events. It exits
// when the body errors out or when done closes (Events returned early).
func (s *Stream) readLoop(frames chan<- readFrame, done <-chan struct{}) {
	for {
		b := make([]byte, 4096)
		n, err := s.body.Read(b)
		if n > 0 {
			select {
			case frames <- readFrame{data: b[:n]}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case frames <- readFrame{err: err}:
			case <-done:
			}
			return
		}
	}
}

// parseLine decodes a single stream line. Returns nil for non-payload
// lines and for malformed payloads (which are logged and skipped).
func (s *Stream) parseLine(line []byte) *Chunk {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, doneSentinel) {
		return nil
	}

	var chunk Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		s.logger.Warn("skipping malformed stream chunk", "error", err, "payload_len", len(payload))
		return nil
	}
	return &chunk
}
