// Copyright 2025 The NLP Odyssey Authors
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

package realtime

import (
	"slices"
	"strings"
	"sync"
)

// TranscriptBuffer holds the ordered committed transcript lines plus at most
// one pending (not yet final) line. Committed lines are immutable once
// appended. The protocol handler is the only writer; read methods return
// copies so the display layer can consume it concurrently.
type TranscriptBuffer struct {
	mu        sync.Mutex
	committed []string
	pending   string
}

func NewTranscriptBuffer() *TranscriptBuffer {
	return &TranscriptBuffer{}
}

// ApplyDelta merges one transcript delta in arrival order.
//
// A final delta commits its text as a new line and clears the pending line.
// A non-final delta leaves the pending line equal to the delta's text: when
// the delta extends the already-seen pending prefix only the new suffix is
// effectively added, and a correction that does not extend it replaces the
// pending line wholesale. Either way overlapping fragments resent by the
// remote agent are never duplicated.
func (b *TranscriptBuffer) ApplyDelta(text string, final bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if final {
		b.committed = append(b.committed, text)
		b.pending = ""
		return
	}

	if b.pending != "" && strings.HasPrefix(text, b.pending) {
		b.pending += text[len(b.pending):]
	} else {
		b.pending = text
	}
}

// Committed returns a copy of the committed lines in order.
func (b *TranscriptBuffer) Committed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.committed)
}

// Pending returns the current pending line, or "" if there is none.
func (b *TranscriptBuffer) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// String renders the buffer the way a display would show it: each committed
// line terminated by a newline, followed by the pending line.
func (b *TranscriptBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	for _, line := range b.committed {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(b.pending)
	return sb.String()
}
