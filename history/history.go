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

// Package history persists the durable outputs of a voice session: the
// committed transcript lines and the decoded filter intents. The pending
// transcript line is never stored; it is display state, not history.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nlpodyssey/voicecart-go/realtime"
)

type EntryKind string

const (
	EntryKindLine   EntryKind = "line"
	EntryKindIntent EntryKind = "intent"
)

// Entry is one stored history item: a committed transcript line or a
// decoded shopping intent.
type Entry struct {
	Kind    EntryKind                 `json:"kind"`
	Text    string                    `json:"text,omitempty"`
	Filters *realtime.FilterArguments `json:"filters,omitempty"`
}

func LineEntry(text string) Entry {
	return Entry{Kind: EntryKindLine, Text: text}
}

func IntentEntry(filters realtime.FilterArguments) Entry {
	return Entry{Kind: EntryKindIntent, Filters: &filters}
}

// A Store records history for a specific session id.
type Store interface {
	SessionID(context.Context) string

	// AddEntries appends entries in order.
	AddEntries(ctx context.Context, entries []Entry) error

	// Entries retrieves stored entries in chronological order.
	// `limit` is the maximum number of entries to retrieve; if <= 0, all
	// entries are returned. When specified, the latest N are returned.
	Entries(ctx context.Context, limit int) ([]Entry, error)

	// Clear removes all entries of this session.
	Clear(ctx context.Context) error

	Close() error
}

func marshalEntry(entry Entry) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("error JSON marshaling history entry: %w", err)
	}
	return string(data), nil
}

func unmarshalEntry(data string) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, fmt.Errorf("error JSON unmarshaling history entry: %w", err)
	}
	return entry, nil
}
