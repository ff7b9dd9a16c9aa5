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

// Command voicecart-backend runs the trusted credential service. It reads
// the provider API key from the environment (or a .env file) and mints
// ephemeral session credentials on POST /session.
package main

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nlpodyssey/voicecart-go/backend"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voicecart-backend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := cmp.Or(os.Getenv("ENV_FILE"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading env file %q: %w", envFile, err)
	}

	var origins []string
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}

	server, err := backend.NewServer(backend.ServerParams{
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		SessionsURL:    os.Getenv("REALTIME_SESSIONS_URL"),
		Model:          os.Getenv("REALTIME_SESSION_MODEL"),
		Voice:          os.Getenv("REALTIME_VOICE"),
		AllowedOrigins: origins,
	})
	if err != nil {
		return err
	}

	port := cmp.Or(os.Getenv("PORT"), "8000")
	return server.Run(":" + port)
}
