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
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nlpodyssey/voicecart-go/asyncqueue"
	"github.com/nlpodyssey/voicecart-go/asynctask"
	"github.com/openai/openai-go/v2/packages/param"
)

// AcquireAudioFunc obtains the local audio capture stream. It is invoked
// only after credential acquisition succeeds. The returned source is
// exclusively owned by the session until released.
type AcquireAudioFunc func(ctx context.Context) (AudioSource, error)

// Client is the session lifecycle manager. It sequences credential fetch,
// audio acquisition and negotiation, holds at most one active session, and
// converges every exit path (explicit Stop, negotiation failure, transport
// closure, remote agent error) onto a single idempotent teardown.
type Client struct {
	params  ClientParams
	fetcher *CredentialFetcher
	events  *asyncqueue.Queue[StreamEvent]

	mu     sync.Mutex
	active *session
}

type ClientParams struct {
	// AcquireAudio obtains the microphone capture stream. Required.
	AcquireAudio AcquireAudioFunc

	// Optional, defaults to DefaultCredentialEndpoint.
	CredentialEndpoint string

	// Optional HTTP client for the credential backend.
	HTTPClient *http.Client

	// Optional, defaults to DefaultRealtimeURL.
	RealtimeURL string

	// Optional, defaults to DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	// Optional, defaults to DefaultTranscriptionModel.
	TranscriptionModel string

	// See ProtocolHandlerParams.AnswerUnknownTools.
	AnswerUnknownTools param.Opt[bool]
}

type session struct {
	cancel       context.CancelFunc
	negotiator   *Negotiator
	source       AudioSource
	attached     bool
	handler      *ProtocolHandler
	handlerTask  *asynctask.TaskNoValue
	teardownOnce sync.Once
}

func NewClient(params ClientParams) *Client {
	return &Client{
		params: params,
		fetcher: NewCredentialFetcher(CredentialFetcherParams{
			Endpoint:   params.CredentialEndpoint,
			HTTPClient: params.HTTPClient,
		}),
		events: asyncqueue.New[StreamEvent](),
	}
}

// Events is the stream consumed by the display layer: transcript updates,
// decoded intents, lifecycle transitions and terminal errors.
func (c *Client) Events() *asyncqueue.Queue[StreamEvent] {
	return c.events
}

// Active reports whether a session is currently held.
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Start establishes a new session: fetch credential, acquire audio,
// negotiate, then let the protocol handler run until closure or Stop.
// It fails with AlreadyActiveError while a session is active, without
// disturbing it. Stop is effective even while Start is still negotiating;
// in that case the late negotiation result is discarded and Start returns
// a CanceledError.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return NewAlreadyActiveError()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel: cancel,
		negotiator: NewNegotiator(NegotiatorParams{
			URL:                c.params.RealtimeURL,
			NegotiationTimeout: c.params.NegotiationTimeout,
		}),
	}
	c.active = s
	c.mu.Unlock()

	if err := c.establish(sctx, s); err != nil {
		c.teardown(s, false)
		return err
	}

	c.emit(StreamEventLifecycle{Stage: StreamEventLifecycleStageStarted})
	Logger().Info("Session started")
	return nil
}

func (c *Client) establish(ctx context.Context, s *session) error {
	credential, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return CanceledErrorf("session stopped during credential fetch: %v", err)
		}
		return err
	}

	source, err := c.params.AcquireAudio(ctx)
	if err != nil {
		var permissionErr *PermissionError
		if errors.As(err, &permissionErr) {
			return err
		}
		return PermissionErrorf("error acquiring audio input: %v", err)
	}
	s.source = source

	// From here the negotiator owns the source: it releases the capture on
	// every one of its failure paths and on Close.
	s.attached = true
	channel, err := s.negotiator.BeginSession(ctx, credential, source)
	if err != nil {
		return err
	}

	s.handler = NewProtocolHandler(ProtocolHandlerParams{
		Channel:            channel,
		Events:             c.events,
		TranscriptionModel: c.params.TranscriptionModel,
		AnswerUnknownTools: c.params.AnswerUnknownTools,
	})
	s.handlerTask = asynctask.CreateTaskNoValue(ctx, func(ctx context.Context) error {
		err := s.handler.Run(ctx)
		c.sessionEnded(s, err)
		return err
	})
	return nil
}

// Stop tears the active session down. It is idempotent: calling it with no
// active session, or twice in a row, is a safe no-op and never releases a
// resource twice.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return
	}
	c.teardown(s, true)
}

// sessionEnded runs on the protocol handler's goroutine when the handler
// loop terminates, including when the trigger was a transport-closure
// event: teardown is re-entrant safe.
func (c *Client) sessionEnded(s *session, err error) {
	if err != nil {
		c.emit(StreamEventError{Err: err})
		Logger().Error("Session terminated", "error", err)
	}
	c.teardown(s, true)
}

// teardown is the single exit path shared by Stop, negotiation failures
// and protocol/transport failures: stop audio capture, close the transport
// and discard the session. Guarded so it runs at most once per session.
func (c *Client) teardown(s *session, emitStopped bool) {
	s.teardownOnce.Do(func() {
		s.cancel()
		s.negotiator.Close()
		if !s.attached && s.source != nil {
			if err := s.source.Release(); err != nil {
				Logger().Warn("Error releasing audio source", "error", err)
			}
		}
		if emitStopped {
			c.emit(StreamEventLifecycle{Stage: StreamEventLifecycleStageStopped})
			Logger().Info("Session stopped")
		}
	})

	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Client) emit(event StreamEvent) {
	c.events.Put(event)
}
