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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/nlpodyssey/voicecart-go/history"
	"github.com/nlpodyssey/voicecart-go/micstream"
	"github.com/nlpodyssey/voicecart-go/realtime"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/spf13/viper"
)

type options struct {
	backendURL         string
	realtimeURL        string
	transcriptionModel string
	recordPath         string
	historyPath        string
	sessionID          string
	answerUnknownTools bool
	verbose            bool
}

// defaultOptions resolves defaults from the environment, so that e.g.
// VOICECART_BACKEND_URL works without flags.
func defaultOptions() options {
	v := viper.New()
	v.SetEnvPrefix("VOICECART")
	v.AutomaticEnv()
	v.SetDefault("backend_url", realtime.DefaultCredentialEndpoint)
	v.SetDefault("realtime_url", realtime.DefaultRealtimeURL)
	v.SetDefault("transcription_model", realtime.DefaultTranscriptionModel)

	return options{
		backendURL:         v.GetString("backend_url"),
		realtimeURL:        v.GetString("realtime_url"),
		transcriptionModel: v.GetString("transcription_model"),
	}
}

func runSession(ctx context.Context, opts options) error {
	if opts.verbose {
		realtime.EnableVerboseStdoutLogging()
	}

	var store history.Store
	if opts.historyPath != "" {
		sessionID := opts.sessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		s, err := history.NewSQLiteStore(ctx, history.SQLiteStoreParams{
			SessionID:        sessionID,
			DBDataSourceName: opts.historyPath,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				realtime.Logger().Warn("Error closing history store", "error", err)
			}
		}()
		store = s
	}

	client := realtime.NewClient(realtime.ClientParams{
		AcquireAudio:       acquireAudioFunc(opts.recordPath),
		CredentialEndpoint: opts.backendURL,
		RealtimeURL:        opts.realtimeURL,
		TranscriptionModel: opts.transcriptionModel,
		AnswerUnknownTools: param.NewOpt(opts.answerUnknownTools),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := client.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Session started. Speak to filter products; press Ctrl+C to stop.")

	go func() {
		<-ctx.Done()
		client.Stop()
	}()

	return consumeEvents(ctx, client, store)
}

// acquireAudioFunc captures the default microphone, optionally teeing the
// captured frames into a WAV recording.
func acquireAudioFunc(recordPath string) realtime.AcquireAudioFunc {
	return func(ctx context.Context) (realtime.AudioSource, error) {
		source, err := micstream.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if recordPath == "" {
			return source, nil
		}

		recorder, err := realtime.CreateWAVRecorderFile(recordPath)
		if err != nil {
			if e := source.Release(); e != nil {
				realtime.Logger().Warn("Error releasing audio source", "error", e)
			}
			return nil, err
		}
		return realtime.TeeSource(source, recorder), nil
	}
}

// consumeEvents drains the client's event stream until the session stops,
// printing transcripts and intents and persisting them when a history store
// is configured.
func consumeEvents(ctx context.Context, client *realtime.Client, store history.Store) error {
	events := client.Events()
	persisted := 0
	var sessionErr error

	for {
		event := events.Get()
		switch e := event.(type) {
		case realtime.StreamEventTranscript:
			if e.Pending != "" {
				fmt.Printf("  … %s\n", e.Pending)
			}
			for _, line := range e.Committed[persisted:] {
				fmt.Printf("you: %s\n", line)
				persist(ctx, store, history.LineEntry(line))
			}
			persisted = len(e.Committed)

		case realtime.StreamEventIntent:
			fmt.Printf("filters applied: %s", formatFilters(e.Filters))
			persist(ctx, store, history.IntentEntry(e.Filters))

		case realtime.StreamEventError:
			sessionErr = e.Err

		case realtime.StreamEventLifecycle:
			if e.Stage == realtime.StreamEventLifecycleStageStopped {
				fmt.Println("Session stopped.")
				return sessionErr
			}
		}
	}
}

func persist(ctx context.Context, store history.Store, entry history.Entry) {
	if store == nil {
		return
	}
	if err := store.AddEntries(ctx, []history.Entry{entry}); err != nil {
		realtime.Logger().Warn("Error persisting history entry", "error", err)
	}
}

func formatFilters(f realtime.FilterArguments) string {
	out := fmt.Sprintf("category=%s", f.Category)
	if f.Color != "" {
		out += fmt.Sprintf(" color=%s", f.Color)
	}
	if f.MaxPrice > 0 {
		out += fmt.Sprintf(" max_price=%.2f", f.MaxPrice)
	}
	return out + "\n"
}
