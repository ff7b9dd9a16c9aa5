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
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// ControlMessage is the tagged union over the JSON-framed wire messages of
// the control channel. Unrecognized message kinds decode to UnknownMessage
// and are ignored, not fatal.
type ControlMessage interface {
	isControlMessage()
}

// TranscriptMessage is an inbound partial or final transcript delta.
type TranscriptMessage struct {
	Text  string
	Final bool
}

// ToolCallMessage is one inbound structured command from the remote agent.
// CorrelationID is opaque and required for the result round trip; when the
// wire form carries no id, a locally generated one keeps the outbound
// acknowledgement well formed.
type ToolCallMessage struct {
	CorrelationID string
	Name          string
	Arguments     json.RawMessage
}

// AgentErrorMessage is an inbound explicit error from the remote agent,
// fatal to the session.
type AgentErrorMessage struct {
	Message string
}

// UnknownMessage carries a message kind this client does not interpret.
type UnknownMessage struct {
	Type string
	Raw  json.RawMessage
}

func (TranscriptMessage) isControlMessage() {}
func (ToolCallMessage) isControlMessage()   {}
func (AgentErrorMessage) isControlMessage() {}
func (UnknownMessage) isControlMessage()    {}

type wireToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string               `json:"id"`
	Function wireToolCallFunction `json:"function"`
}

type wireMessage struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	IsFinal   bool            `json:"is_final"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args"`
	ToolCalls []wireToolCall  `json:"tool_calls"`
	Error     json.RawMessage `json:"error"`
}

// DecodeControlMessages interprets one JSON frame of the control channel.
// A single frame may carry several tool calls (the tool_calls form), hence
// the slice. Malformed frames yield a ProtocolError.
func DecodeControlMessages(data []byte) ([]ControlMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ProtocolErrorf("error unmarshaling control message: %v", err)
	}

	switch wire.Type {
	case "transcript":
		return []ControlMessage{TranscriptMessage{Text: wire.Text, Final: wire.IsFinal}}, nil

	case "function_call":
		if wire.Name == "" {
			return nil, NewProtocolError("function_call message without a function name")
		}
		id := wire.ID
		if id == "" {
			id = "local_" + uuid.NewString()
		}
		return []ControlMessage{ToolCallMessage{
			CorrelationID: id,
			Name:          wire.Name,
			Arguments:     wire.Args,
		}}, nil

	case "tool_calls":
		if len(wire.ToolCalls) == 0 {
			return nil, NewProtocolError("tool_calls message without calls")
		}
		messages := make([]ControlMessage, 0, len(wire.ToolCalls))
		for _, call := range wire.ToolCalls {
			if call.ID == "" {
				return nil, NewProtocolError("tool_calls entry without a call id")
			}
			if call.Function.Name == "" {
				return nil, NewProtocolError("tool_calls entry without a function name")
			}
			messages = append(messages, ToolCallMessage{
				CorrelationID: call.ID,
				Name:          call.Function.Name,
				Arguments:     json.RawMessage(call.Function.Arguments),
			})
		}
		return messages, nil

	case "error":
		return []ControlMessage{AgentErrorMessage{Message: rawToString(wire.Error)}}, nil

	case "":
		return nil, NewProtocolError("control message without a type")

	default:
		return []ControlMessage{UnknownMessage{Type: wire.Type, Raw: data}}, nil
	}
}

// rawToString renders the wire `error` field, which is a string per the
// protocol but tolerated as any JSON value.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// SessionConfigMessage builds the single session.update frame sent on
// channel open, declaring the input transcription model.
func SessionConfigMessage(transcriptionModel string) map[string]any {
	return map[string]any{
		"event_id": "event_" + uuid.NewString(),
		"type":     "session.update",
		"session": map[string]any{
			"input_audio_transcription": map[string]any{
				"model": transcriptionModel,
			},
		},
	}
}

// ToolOutputsMessage builds the outbound acknowledgement of one tool call.
func ToolOutputsMessage(correlationID, output string) map[string]any {
	return map[string]any{
		"event_id": "event_" + uuid.NewString(),
		"type":     "tool_outputs",
		"tool_outputs": []map[string]any{
			{"tool_call_id": correlationID, "output": output},
		},
	}
}

// AudioAppendMessage builds the envelope carrying one base64 PCM frame.
func AudioAppendMessage(frame PCM16) map[string]any {
	return map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": frame.Base64(),
	}
}

// FilterAppliedOutput serializes the outcome payload confirming that the
// decoded filters were applied. There is no external catalog lookup: the
// confirmation is the result.
func FilterAppliedOutput(filters FilterArguments) string {
	fields := map[string]any{
		"status":   "applied",
		"category": filters.Category,
	}
	if filters.Color != "" {
		fields["color"] = filters.Color
	}
	if filters.MaxPrice > 0 {
		fields["max_price"] = filters.MaxPrice
	}
	out, err := json.Marshal(fields)
	if err != nil {
		// Marshaling a map of plain values cannot fail; guard anyway.
		return `{"status":"applied"}`
	}
	return string(out)
}

// trimForLog shortens a payload for debug logging.
func trimForLog(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "... (" + strconv.Itoa(len(data)) + " bytes)"
}
