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

// Command voicecart runs a voice shopping session from the terminal: it
// captures the microphone, streams it to the realtime endpoint, and prints
// live transcripts and decoded product filters until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voicecart: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultOptions()

	rootCmd := &cobra.Command{
		Use:           "voicecart",
		Short:         "Voice shopping session client",
		Long:          "voicecart starts a realtime voice session with a shopping agent. Speak filters like \"show me red sneakers under fifty dollars\" and watch transcripts and decoded product filters stream to the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.backendURL, "backend-url", opts.backendURL, "credential backend endpoint")
	flags.StringVar(&opts.realtimeURL, "realtime-url", opts.realtimeURL, "realtime websocket endpoint")
	flags.StringVar(&opts.transcriptionModel, "transcription-model", opts.transcriptionModel, "model transcribing the input audio")
	flags.StringVar(&opts.recordPath, "record", "", "also record the captured audio to this WAV file")
	flags.StringVar(&opts.historyPath, "history", "", "persist transcript lines and intents to this SQLite file")
	flags.StringVar(&opts.sessionID, "session-id", "", "history session identifier (defaults to a random one)")
	flags.BoolVar(&opts.answerUnknownTools, "answer-unknown-tools", false, "send an error output for unrecognized tool calls")
	flags.BoolVar(&opts.verbose, "verbose", false, "verbose logging on stdout")

	return rootCmd
}
