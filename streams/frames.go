// Copyright 2026 The AgentView Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streams

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	agentview "github.com/agentview/agentview-go"
)

// doneSentinel terminates a data-only stream.
const doneSentinel = "[DONE]"

// A frame is one unit of the line-delimited event envelope: an optional
// event name plus a JSON data payload. Frames are separated by blank
// lines; `event:` and `data:` lines carry the fields, `:`-prefixed lines
// are comments.
type frame struct {
	Event string
	Data  json.RawMessage
}

// frameReader incrementally parses frames from a streamed response body.
// It holds no more than one in-flight frame: each Next call performs the
// reads needed for exactly one frame, which is what gives the consumer
// natural backpressure over the producer.
type frameReader struct {
	scanner *bufio.Scanner
}

func newFrameReader(r io.Reader) *frameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &frameReader{scanner: scanner}
}

// Next returns the next frame, io.EOF at the end of the stream, or a
// ParseError for a non-JSON payload on an otherwise well-formed frame
// line. A parse failure is fatal: the reader must not be used afterwards.
func (r *frameReader) Next() (*frame, error) {
	var event string
	var data strings.Builder

	flush := func() (*frame, error) {
		if data.Len() == 0 {
			return nil, io.EOF
		}
		payload := data.String()
		if payload == doneSentinel {
			return nil, io.EOF
		}
		if !json.Valid([]byte(payload)) {
			return nil, ParseErrorf("invalid JSON payload in stream frame: %q", payload)
		}
		return &frame{Event: event, Data: json.RawMessage(payload)}, nil
	}

	for r.scanner.Scan() {
		line := r.scanner.Text()

		switch {
		case strings.TrimSpace(line) == "":
			// Frame boundary. Blank lines before any content are skipped.
			if data.Len() > 0 {
				return flush()
			}
		case strings.HasPrefix(line, ":"):
			// comment line
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			agentview.Logger().Warn("unknown stream envelope line", "line", line)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return flush()
}
