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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeControlMessages(t *testing.T) {
	t.Run("transcript partial", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "transcript", "text": "show me", "is_final": false}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, TranscriptMessage{Text: "show me", Final: false}, messages[0])
	})

	t.Run("transcript final", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "transcript", "text": "show me red sneakers", "is_final": true}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, TranscriptMessage{Text: "show me red sneakers", Final: true}, messages[0])
	})

	t.Run("function_call", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "function_call", "id": "call_1", "name": "filter_products", "args": {"category": "shoes"}}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		call, ok := messages[0].(ToolCallMessage)
		require.True(t, ok)
		assert.Equal(t, "call_1", call.CorrelationID)
		assert.Equal(t, "filter_products", call.Name)
		assert.JSONEq(t, `{"category": "shoes"}`, string(call.Arguments))
	})

	t.Run("function_call without id gets a local one", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "function_call", "name": "filter_products", "args": {"category": "shoes"}}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		call, ok := messages[0].(ToolCallMessage)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(call.CorrelationID, "local_"))
	})

	t.Run("function_call without name is a protocol error", func(t *testing.T) {
		_, err := DecodeControlMessages([]byte(`{"type": "function_call", "id": "call_1"}`))
		var protocolErr *ProtocolError
		require.ErrorAs(t, err, &protocolErr)
	})

	t.Run("tool_calls with string arguments", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{
			"type": "tool_calls",
			"tool_calls": [
				{"id": "call_1", "function": {"name": "filter_products", "arguments": "{\"category\": \"shoes\", \"color\": \"red\"}"}},
				{"id": "call_2", "function": {"name": "filter_products", "arguments": "{\"category\": \"shirts\"}"}}
			]
		}`))
		require.NoError(t, err)
		require.Len(t, messages, 2)

		first, ok := messages[0].(ToolCallMessage)
		require.True(t, ok)
		assert.Equal(t, "call_1", first.CorrelationID)
		assert.JSONEq(t, `{"category": "shoes", "color": "red"}`, string(first.Arguments))

		second, ok := messages[1].(ToolCallMessage)
		require.True(t, ok)
		assert.Equal(t, "call_2", second.CorrelationID)
	})

	t.Run("tool_calls entry without id is a protocol error", func(t *testing.T) {
		_, err := DecodeControlMessages([]byte(`{"type": "tool_calls", "tool_calls": [{"function": {"name": "filter_products", "arguments": "{}"}}]}`))
		var protocolErr *ProtocolError
		require.ErrorAs(t, err, &protocolErr)
	})

	t.Run("error message", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "error", "error": "session expired"}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, AgentErrorMessage{Message: "session expired"}, messages[0])
	})

	t.Run("error message with structured payload", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "error", "error": {"message": "bad session"}}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		errMsg, ok := messages[0].(AgentErrorMessage)
		require.True(t, ok)
		assert.Contains(t, errMsg.Message, "bad session")
	})

	t.Run("unknown type is carried, not fatal", func(t *testing.T) {
		messages, err := DecodeControlMessages([]byte(`{"type": "rate_limits.updated"}`))
		require.NoError(t, err)
		require.Len(t, messages, 1)
		unknown, ok := messages[0].(UnknownMessage)
		require.True(t, ok)
		assert.Equal(t, "rate_limits.updated", unknown.Type)
	})

	t.Run("missing type is a protocol error", func(t *testing.T) {
		_, err := DecodeControlMessages([]byte(`{"text": "hello"}`))
		var protocolErr *ProtocolError
		require.ErrorAs(t, err, &protocolErr)
	})

	t.Run("malformed JSON is a protocol error", func(t *testing.T) {
		_, err := DecodeControlMessages([]byte(`{not json`))
		var protocolErr *ProtocolError
		require.ErrorAs(t, err, &protocolErr)
	})
}

func TestSessionConfigMessage(t *testing.T) {
	msg := SessionConfigMessage("whisper-1")
	assert.Equal(t, "session.update", msg["type"])
	assert.NotEmpty(t, msg["event_id"])

	session, ok := msg["session"].(map[string]any)
	require.True(t, ok)
	transcription, ok := session["input_audio_transcription"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "whisper-1", transcription["model"])
}

func TestToolOutputsMessage(t *testing.T) {
	msg := ToolOutputsMessage("call_1", `{"status":"applied"}`)
	assert.Equal(t, "tool_outputs", msg["type"])

	outputs, ok := msg["tool_outputs"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, outputs, 1)
	assert.Equal(t, "call_1", outputs[0]["tool_call_id"])
	assert.Equal(t, `{"status":"applied"}`, outputs[0]["output"])
}

func TestAudioAppendMessage(t *testing.T) {
	frame := PCM16{0x0102, 0x0304}
	msg := AudioAppendMessage(frame)
	assert.Equal(t, "input_audio_buffer.append", msg["type"])
	assert.Equal(t, frame.Base64(), msg["audio"])
}

func TestFilterAppliedOutput(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		out := FilterAppliedOutput(FilterArguments{Category: "shoes", Color: "red", MaxPrice: 50})
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, map[string]any{
			"status":    "applied",
			"category":  "shoes",
			"color":     "red",
			"max_price": 50.0,
		}, decoded)
	})

	t.Run("optional fields omitted", func(t *testing.T) {
		out := FilterAppliedOutput(FilterArguments{Category: "shirts"})
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, map[string]any{
			"status":   "applied",
			"category": "shirts",
		}, decoded)
	})
}
