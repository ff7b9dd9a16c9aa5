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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// realtimeEndpointStub is a local websocket endpoint scripted per test.
type realtimeEndpointStub struct {
	server  *httptest.Server
	headers chan http.Header
	conns   chan *websocket.Conn
}

func newRealtimeEndpointStub(t *testing.T, answer func(conn *websocket.Conn)) *realtimeEndpointStub {
	t.Helper()
	stub := &realtimeEndpointStub{
		headers: make(chan http.Header, 4),
		conns:   make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		stub.conns <- conn
		if answer != nil {
			answer(conn)
		}
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *realtimeEndpointStub) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func sendJSON(conn *websocket.Conn, v any) {
	data, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func assertSourceReleased(t *testing.T, source *StreamedAudioSource) {
	t.Helper()
	_, err := source.ReadFrame()
	assert.ErrorIs(t, err, ErrSourceReleased)
}

func TestNegotiatorBeginSession(t *testing.T) {
	stub := newRealtimeEndpointStub(t, func(conn *websocket.Conn) {
		sendJSON(conn, map[string]any{"type": "session.created"})
	})

	n := NewNegotiator(NegotiatorParams{URL: stub.url()})
	source := NewStreamedAudioSource()

	channel, err := n.BeginSession(t.Context(), "ek_abc", source)
	require.NoError(t, err)
	require.NotNil(t, channel)
	assert.Equal(t, TransportStateConnected, n.State())

	// The dial carried the ephemeral credential
	header := <-stub.headers
	assert.Equal(t, "Bearer ek_abc", header.Get("Authorization"))
	assert.Equal(t, "realtime=v1", header.Get("OpenAI-Beta"))

	// Captured frames flow to the endpoint
	frame := PCM16{1, 2, 3}
	source.AddFrame(frame)

	serverConn := <-stub.conns
	require.NoError(t, serverConn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := serverConn.ReadMessage()
	require.NoError(t, err)

	var appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	require.NoError(t, json.Unmarshal(data, &appendMsg))
	assert.Equal(t, "input_audio_buffer.append", appendMsg.Type)
	assert.Equal(t, frame.Base64(), appendMsg.Audio)

	n.Close()
	assert.Equal(t, TransportStateClosed, n.State())
	assertSourceReleased(t, source)
}

func TestNegotiatorIgnoresPreAnswerFrames(t *testing.T) {
	stub := newRealtimeEndpointStub(t, func(conn *websocket.Conn) {
		sendJSON(conn, map[string]any{"type": "transcription_session.updated"})
		sendJSON(conn, map[string]any{"type": "session.created"})
	})

	n := NewNegotiator(NegotiatorParams{URL: stub.url()})
	channel, err := n.BeginSession(t.Context(), "ek_abc", NewStreamedAudioSource())
	require.NoError(t, err)
	require.NotNil(t, channel)
	n.Close()
}

func TestNegotiatorRejection(t *testing.T) {
	stub := newRealtimeEndpointStub(t, func(conn *websocket.Conn) {
		sendJSON(conn, map[string]any{"type": "error", "error": "invalid ephemeral key"})
	})

	n := NewNegotiator(NegotiatorParams{URL: stub.url()})
	source := NewStreamedAudioSource()

	_, err := n.BeginSession(t.Context(), "ek_bad", source)
	var negotiationErr *NegotiationError
	require.ErrorAs(t, err, &negotiationErr)
	assert.Contains(t, err.Error(), "invalid ephemeral key")

	assert.Equal(t, TransportStateFailed, n.State())
	assertSourceReleased(t, source)
}

func TestNegotiatorTimeout(t *testing.T) {
	stub := newRealtimeEndpointStub(t, nil) // never answers

	n := NewNegotiator(NegotiatorParams{
		URL:                stub.url(),
		NegotiationTimeout: 100 * time.Millisecond,
	})
	source := NewStreamedAudioSource()

	_, err := n.BeginSession(t.Context(), "ek_abc", source)
	var negotiationErr *NegotiationError
	require.ErrorAs(t, err, &negotiationErr)

	assert.Equal(t, TransportStateFailed, n.State())
	assertSourceReleased(t, source)
}

func TestNegotiatorDialFailure(t *testing.T) {
	stub := newRealtimeEndpointStub(t, nil)
	url := stub.url()
	stub.server.Close()

	n := NewNegotiator(NegotiatorParams{URL: url})
	source := NewStreamedAudioSource()

	_, err := n.BeginSession(t.Context(), "ek_abc", source)
	var negotiationErr *NegotiationError
	require.ErrorAs(t, err, &negotiationErr)
	assertSourceReleased(t, source)
}

func TestNegotiatorSingleUse(t *testing.T) {
	stub := newRealtimeEndpointStub(t, func(conn *websocket.Conn) {
		sendJSON(conn, map[string]any{"type": "error", "error": "nope"})
	})

	n := NewNegotiator(NegotiatorParams{URL: stub.url()})
	_, err := n.BeginSession(t.Context(), "ek_abc", NewStreamedAudioSource())
	require.Error(t, err)

	second := NewStreamedAudioSource()
	_, err = n.BeginSession(t.Context(), "ek_abc", second)
	var negotiationErr *NegotiationError
	require.ErrorAs(t, err, &negotiationErr)
	assert.Contains(t, err.Error(), "single-use")
	assertSourceReleased(t, second)
}

func TestNegotiatorCloseDuringNegotiation(t *testing.T) {
	stub := newRealtimeEndpointStub(t, nil) // leaves the handshake hanging

	n := NewNegotiator(NegotiatorParams{URL: stub.url()})
	source := NewStreamedAudioSource()

	go func() {
		time.Sleep(100 * time.Millisecond)
		n.Close()
	}()

	_, err := n.BeginSession(t.Context(), "ek_abc", source)
	require.Error(t, err)
	assertSourceReleased(t, source)
}

func TestNegotiatorCloseIsIdempotent(t *testing.T) {
	n := NewNegotiator(NegotiatorParams{})
	n.Close()
	n.Close()
	assert.Equal(t, TransportStateClosed, n.State())
}
