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
	"context"
	"time"

	"github.com/nlpodyssey/voicecart-go/asyncqueue"
	"github.com/nlpodyssey/voicecart-go/asynctask"
	"github.com/openai/openai-go/v2/packages/param"
)

// DefaultTranscriptionModel is declared in the session.update config frame
// when no other model is requested.
const DefaultTranscriptionModel = "whisper-1"

// handlerIdleTimeout is how often the event loop wakes to notice context
// cancellation while no frames arrive.
const handlerIdleTimeout = time.Second

type protocolHandlerInboundItem interface {
	isProtocolHandlerInboundItem()
}

type protocolHandlerFrame []byte
type protocolHandlerClosed struct{ err error }

func (protocolHandlerFrame) isProtocolHandlerInboundItem()  {}
func (protocolHandlerClosed) isProtocolHandlerInboundItem() {}

// ProtocolHandler owns the message protocol of an established control
// channel: it decodes inbound frames strictly in arrival order, maintains
// the TranscriptBuffer, runs the tool-call round trip and emits display
// events. Exactly one session.update config frame is sent on open, before
// any audio-derived transcript is expected.
type ProtocolHandler struct {
	channel    ControlChannel
	transcript *TranscriptBuffer
	events     *asyncqueue.Queue[StreamEvent]

	transcriptionModel string
	answerUnknown      bool

	// correlation ids already consumed by a ToolResult; at most one result
	// is ever sent per id, duplicates are a ProtocolError.
	answeredCalls map[string]struct{}

	inbound      *asyncqueue.Queue[protocolHandlerInboundItem]
	listenerTask *asynctask.TaskNoValue
	ran          bool
}

type ProtocolHandlerParams struct {
	// The established control channel. Required.
	Channel ControlChannel

	// Display event sink. Required.
	Events *asyncqueue.Queue[StreamEvent]

	// Optional, defaults to DefaultTranscriptionModel.
	TranscriptionModel string

	// Whether to acknowledge recognized-but-unfulfillable and unrecognized
	// tool calls with an error output instead of staying silent.
	// Defaults to false: the remote protocol does not require an answer.
	AnswerUnknownTools param.Opt[bool]
}

func NewProtocolHandler(params ProtocolHandlerParams) *ProtocolHandler {
	model := params.TranscriptionModel
	if model == "" {
		model = DefaultTranscriptionModel
	}
	return &ProtocolHandler{
		channel:            params.Channel,
		transcript:         NewTranscriptBuffer(),
		events:             params.Events,
		transcriptionModel: model,
		answerUnknown:      params.AnswerUnknownTools.Or(false),
		answeredCalls:      make(map[string]struct{}),
		inbound:            asyncqueue.New[protocolHandlerInboundItem](),
	}
}

// Transcript exposes the handler's transcript buffer. Read-only for
// callers: the handler is its only writer.
func (h *ProtocolHandler) Transcript() *TranscriptBuffer {
	return h.transcript
}

// Run sends the session config frame and processes inbound messages until
// the channel closes or a fatal condition arises. It returns nil on normal
// closure, a TransportError on abnormal closure, an AgentError when the
// remote agent reports a fatal error. Run is single-use.
func (h *ProtocolHandler) Run(ctx context.Context) error {
	if h.ran {
		return NewProtocolError("protocol handler is single-use")
	}
	h.ran = true

	if err := h.channel.WriteJSON(SessionConfigMessage(h.transcriptionModel)); err != nil {
		return TransportErrorf("error sending session config: %v", err)
	}

	h.listenerTask = asynctask.CreateTaskNoValue(ctx, h.listen)
	defer h.listenerTask.Cancel()

	for {
		item, ok := h.inbound.GetTimeout(handlerIdleTimeout)
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		switch item := item.(type) {
		case protocolHandlerFrame:
			if err := h.processFrame(item); err != nil {
				return err
			}
		case protocolHandlerClosed:
			if item.err == nil || isNormalClosure(item.err) || ctx.Err() != nil {
				return nil
			}
			return TransportErrorf("control channel closed: %v", item.err)
		}
	}
}

// listen moves raw frames from the channel onto the inbound queue so the
// event loop interprets them one at a time, in arrival order.
func (h *ProtocolHandler) listen(context.Context) error {
	for {
		data, err := h.channel.ReadMessage()
		if err != nil {
			h.inbound.Put(protocolHandlerClosed{err: err})
			return nil
		}
		h.inbound.Put(protocolHandlerFrame(data))
	}
}

// processFrame interprets one inbound frame. Only a fatal condition is
// returned: a malformed frame is logged and skipped.
func (h *ProtocolHandler) processFrame(data []byte) error {
	messages, err := DecodeControlMessages(data)
	if err != nil {
		Logger().Warn("Skipping malformed control message", "error", err, "payload", trimForLog(data, 256))
		return nil
	}

	for _, message := range messages {
		switch message := message.(type) {
		case TranscriptMessage:
			h.handleTranscript(message)
		case ToolCallMessage:
			if err := h.handleToolCall(message); err != nil {
				return err
			}
		case AgentErrorMessage:
			return AgentErrorf("remote agent error: %s", message.Message)
		case UnknownMessage:
			Logger().Debug("Ignoring control message of unrecognized type", "type", message.Type)
		}
	}
	return nil
}

func (h *ProtocolHandler) handleTranscript(message TranscriptMessage) {
	h.transcript.ApplyDelta(message.Text, message.Final)

	if DontLogTranscripts {
		Logger().Debug("Transcript delta", "final", message.Final)
	} else {
		Logger().Debug("Transcript delta", "final", message.Final, "text", message.Text)
	}

	h.events.Put(StreamEventTranscript{
		Committed: h.transcript.Committed(),
		Pending:   h.transcript.Pending(),
	})
}

// handleToolCall runs the round trip for one invocation: decode, surface
// the intent, acknowledge with exactly one tool_outputs frame. The
// acknowledgement does not wait for the display layer.
func (h *ProtocolHandler) handleToolCall(call ToolCallMessage) error {
	if _, seen := h.answeredCalls[call.CorrelationID]; seen {
		Logger().Warn("Skipping tool call with duplicate correlation id",
			"error", ProtocolErrorf("duplicate tool call id %q", call.CorrelationID))
		return nil
	}

	if call.Name != FilterProductsToolName {
		Logger().Warn("Ignoring unrecognized tool call", "name", call.Name)
		if h.answerUnknown {
			return h.sendToolOutput(call.CorrelationID, `{"status":"error","error":"unknown tool"}`)
		}
		return nil
	}

	filters, err := DecodeFilterArguments(call.Arguments)
	if err != nil {
		Logger().Warn("Skipping tool call with invalid arguments", "name", call.Name, "error", err)
		return nil
	}

	Logger().Info("Decoded filter intent",
		"category", filters.Category, "color", filters.Color, "max_price", filters.MaxPrice)
	h.events.Put(StreamEventIntent{Filters: filters})

	return h.sendToolOutput(call.CorrelationID, FilterAppliedOutput(filters))
}

func (h *ProtocolHandler) sendToolOutput(correlationID, output string) error {
	h.answeredCalls[correlationID] = struct{}{}
	if err := h.channel.WriteJSON(ToolOutputsMessage(correlationID, output)); err != nil {
		return TransportErrorf("error sending tool output: %v", err)
	}
	return nil
}
