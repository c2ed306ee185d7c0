// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 4 * 1024 * 1024

// =============================================================================
// STREAM TYPES
// =============================================================================

// StreamChunk represents a single chunk from a streaming response.
type StreamChunk struct {
	Content    string
	Model      string
	Done       bool
	DoneReason string
	EvalCount  int
}

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	scanner *bufio.Scanner
	model   string
	chunks  int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamReader{scanner: scanner}
}

// Chunks yields parsed chunks until a done chunk, EOF, an error line, or
// context cancellation. Malformed lines are skipped.
func (s *StreamReader) Chunks(ctx context.Context) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		for s.scanner.Scan() {
			if err := ctx.Err(); err != nil {
				yield(StreamChunk{}, err)
				return
			}

			line := bytes.TrimSpace(s.scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var resp ChatResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				continue
			}
			if resp.Error != "" {
				yield(StreamChunk{}, &ClientError{Type: ErrTypeInvalidResponse, Message: resp.Error})
				return
			}
			if resp.Model != "" {
				s.model = resp.Model
			}

			s.chunks++
			chunk := StreamChunk{
				Content:    resp.Message.Content,
				Model:      s.model,
				Done:       resp.Done,
				DoneReason: resp.DoneReason,
				EvalCount:  resp.EvalCount,
			}
			if !yield(chunk, nil) || chunk.Done {
				return
			}
		}

		if err := s.scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			yield(StreamChunk{}, &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err})
			return
		}
		if s.chunks == 0 {
			yield(StreamChunk{}, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty response stream"})
		}
	}
}

// Model returns the model name reported by the server.
func (s *StreamReader) Model() string {
	return s.model
}
