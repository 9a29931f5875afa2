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
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	agentview "github.com/agentview/agentview-go"
)

// PassThrough adapts a backend that already speaks the canonical event
// protocol: named frames carrying run.patch payloads, terminated by an
// end event. Frames are relayed without reshaping. An error frame ends
// the stream with a ProtocolError built from its payload.
func PassThrough(ctx context.Context, client *http.Client, url string, body any) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		resp, responseData, err := postAgent(ctx, client, url, body)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				agentview.Logger().Error("failed to close agent response body", "error", err)
			}
		}()

		if !emitPreamble(yield, resp, responseData) {
			return
		}

		reader := newFrameReader(resp.Body)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, NewCanceledError("agent stream canceled"))
				return
			}

			fr, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, streamErr(ctx, err))
				return
			}

			switch fr.Event {
			case EventEnd:
				return
			case "error":
				yield(nil, newProtocolError(0, tryParseJSON(fr.Data)))
				return
			case "":
				// Frames without an event name are not part of the
				// canonical protocol; skip them.
				agentview.Logger().Warn("skipping agent stream frame without an event name")
				continue
			}

			if !yield(&Event{Name: fr.Event, Data: fr.Data}, nil) {
				return
			}
		}
	}
}
