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

// StreamEvent is an event surfaced to the display layer via Client.Events.
type StreamEvent interface {
	isStreamEvent()
}

// StreamEventTranscript reports that the transcript changed. Committed and
// Pending are a consistent snapshot of the TranscriptBuffer.
type StreamEventTranscript struct {
	Committed []string
	Pending   string
}

func (StreamEventTranscript) isStreamEvent() {}

// StreamEventIntent carries one decoded filter_products command.
type StreamEventIntent struct {
	Filters FilterArguments
}

func (StreamEventIntent) isStreamEvent() {}

type StreamEventLifecycleStage string

const (
	StreamEventLifecycleStageStarted StreamEventLifecycleStage = "started"
	StreamEventLifecycleStageStopped StreamEventLifecycleStage = "stopped"
)

// StreamEventLifecycle reports a session lifecycle transition.
type StreamEventLifecycle struct {
	Stage StreamEventLifecycleStage
}

func (StreamEventLifecycle) isStreamEvent() {}

// StreamEventError carries a terminal session error. It is always followed
// by a "stopped" lifecycle event.
type StreamEventError struct {
	Err error
}

func (StreamEventError) isStreamEvent() {}
