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
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nlpodyssey/voicecart-go/asynctask"
)

// TransportState is the lifecycle state of one session's transport.
type TransportState int

const (
	TransportStateIdle TransportState = iota
	TransportStateNegotiating
	TransportStateConnected
	TransportStateClosed
	TransportStateFailed
)

func (s TransportState) String() string {
	switch s {
	case TransportStateIdle:
		return "idle"
	case TransportStateNegotiating:
		return "negotiating"
	case TransportStateConnected:
		return "connected"
	case TransportStateClosed:
		return "closed"
	case TransportStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	// DefaultRealtimeURL is the remote agent's session endpoint.
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime"

	// DefaultNegotiationTimeout bounds the wait for the remote answer.
	DefaultNegotiationTimeout = 10 * time.Second
)

// Credential is the opaque, short-lived, single-use key issued by the
// trusted backend. It is never the long-lived provider API key.
type Credential string

// Negotiator establishes one session with the remote agent: it dials the
// realtime endpoint authenticated by the ephemeral credential, awaits the
// remote session.created answer, then attaches the audio source and yields
// a live ControlChannel.
//
// A Negotiator is single-use. A session attempt that fails must be fully
// discarded; BeginSession cannot be called again on the same instance.
type Negotiator struct {
	url     string
	dialer  *websocket.Dialer
	timeout time.Duration

	mu         sync.Mutex
	state      TransportState
	closed     bool
	conn       *websocket.Conn
	channel    *wsControlChannel
	source     AudioSource
	released   bool
	streamTask *asynctask.TaskNoValue
}

type NegotiatorParams struct {
	// Optional, defaults to DefaultRealtimeURL.
	URL string

	// Optional, defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Optional, defaults to DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration
}

func NewNegotiator(params NegotiatorParams) *Negotiator {
	dialer := params.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Negotiator{
		url:     cmp.Or(params.URL, DefaultRealtimeURL),
		dialer:  dialer,
		timeout: cmp.Or(params.NegotiationTimeout, DefaultNegotiationTimeout),
		state:   TransportStateIdle,
	}
}

func (n *Negotiator) State() TransportState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// BeginSession performs the handshake and, on success, starts streaming the
// audio source to the remote endpoint. No audio is transmitted before the
// remote answer is accepted. On any failure path the audio source's
// underlying capture is released before the error propagates.
func (n *Negotiator) BeginSession(ctx context.Context, credential Credential, source AudioSource) (ControlChannel, error) {
	n.mu.Lock()
	if n.state != TransportStateIdle {
		state := n.state
		n.mu.Unlock()
		if err := source.Release(); err != nil {
			Logger().Warn("Error releasing audio source", "error", err)
		}
		return nil, NegotiationErrorf("negotiator is single-use: state is %s, want idle", state)
	}
	n.state = TransportStateNegotiating
	n.source = source
	n.mu.Unlock()

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+string(credential))
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := n.dialer.DialContext(ctx, n.url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, n.fail(nil, NegotiationErrorf("error dialing realtime endpoint: %v", err))
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, n.fail(conn, NewCanceledError("session stopped during negotiation"))
	}
	n.conn = conn
	n.mu.Unlock()

	// Unblock the handshake read if teardown is requested while the answer
	// is still in flight.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	if err = n.awaitAnswer(conn); err != nil {
		if ctx.Err() != nil {
			err = CanceledErrorf("session negotiation canceled: %v", ctx.Err())
		}
		return nil, n.fail(conn, err)
	}

	n.mu.Lock()
	if n.closed || ctx.Err() != nil {
		n.mu.Unlock()
		return nil, n.fail(conn, NewCanceledError("session stopped during negotiation"))
	}
	n.state = TransportStateConnected
	channel := newWSControlChannel(conn)
	n.channel = channel
	n.streamTask = asynctask.CreateTaskNoValue(ctx, func(ctx context.Context) error {
		return streamAudio(ctx, channel, source)
	})
	n.mu.Unlock()

	Logger().Info("Session negotiated", "url", n.url)
	return channel, nil
}

// awaitAnswer reads handshake frames until the remote endpoint confirms the
// session, bounded by the negotiation timeout.
func (n *Negotiator) awaitAnswer(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(n.timeout)); err != nil {
		return NegotiationErrorf("error setting negotiation deadline: %v", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return NegotiationErrorf("no answer from remote endpoint: %v", err)
		}

		var answer struct {
			Type  string          `json:"type"`
			Error json.RawMessage `json:"error"`
		}
		if err = json.Unmarshal(data, &answer); err != nil {
			return NegotiationErrorf("malformed answer from remote endpoint: %v", err)
		}

		switch answer.Type {
		case "session.created":
			if err = conn.SetReadDeadline(time.Time{}); err != nil {
				return NegotiationErrorf("error clearing negotiation deadline: %v", err)
			}
			return nil
		case "error":
			return NegotiationErrorf("remote endpoint rejected session: %s", rawToString(answer.Error))
		default:
			// Pre-answer frames of other kinds are not part of the handshake.
			Logger().Debug("Ignoring pre-answer frame", "type", answer.Type)
		}
	}
}

// streamAudio forwards capture frames to the remote endpoint until the
// source is released or the channel goes away.
func streamAudio(ctx context.Context, channel ControlChannel, source AudioSource) error {
	for {
		frame, err := source.ReadFrame()
		if err != nil {
			if err == ErrSourceReleased || ctx.Err() != nil {
				return nil
			}
			return TransportErrorf("error reading audio frame: %v", err)
		}
		if frame.Len() == 0 {
			continue
		}

		if err = channel.WriteJSON(AudioAppendMessage(frame)); err != nil {
			if isNormalClosure(err) || ctx.Err() != nil {
				return nil
			}
			return TransportErrorf("error streaming audio frame: %v", err)
		}
	}
}

// fail transitions to Failed, releasing the connection and the audio
// capture before returning the error to propagate.
func (n *Negotiator) fail(conn *websocket.Conn, err error) error {
	if conn != nil {
		if e := conn.Close(); e != nil {
			Logger().Debug("Error closing connection after failed negotiation", "error", e)
		}
	}

	n.mu.Lock()
	n.state = TransportStateFailed
	n.conn = nil
	n.releaseSourceLocked(n.source)
	n.mu.Unlock()

	return err
}

// Close tears the transport down: it stops the audio stream, closes the
// channel and releases the capture. It is idempotent and safe to call from
// any state, including while negotiation is still in flight.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	if n.streamTask != nil {
		n.streamTask.Cancel()
		n.streamTask = nil
	}
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			Logger().Debug("Error closing control channel", "error", err)
		}
		n.channel = nil
		n.conn = nil
	} else if n.conn != nil {
		// Negotiation is still in flight: closing the raw connection
		// unblocks the handshake read.
		if err := n.conn.Close(); err != nil {
			Logger().Debug("Error closing connection", "error", err)
		}
		n.conn = nil
	}
	n.releaseSourceLocked(n.source)
	if n.state != TransportStateFailed {
		n.state = TransportStateClosed
	}
}

// releaseSourceLocked releases the capture exactly once. Double-release and
// leaked-release are both defects; the guard makes every exit path converge
// here safely.
func (n *Negotiator) releaseSourceLocked(source AudioSource) {
	if source == nil || n.released {
		return
	}
	n.released = true
	if err := source.Release(); err != nil {
		Logger().Warn("Error releasing audio source", "error", err)
	}
}
