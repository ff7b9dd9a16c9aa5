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

// Package backend is the trusted credential service. It holds the provider
// API key and mints short-lived session credentials for clients, so that
// the key itself never reaches them.
package backend

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nlpodyssey/voicecart-go/realtime"
)

const (
	// DefaultSessionsURL is the provider endpoint minting realtime sessions.
	DefaultSessionsURL = "https://api.openai.com/v1/realtime/sessions"

	// DefaultSessionModel is the realtime model configured for new sessions.
	DefaultSessionModel = "gpt-4o-realtime-preview-2024-12-17"

	// DefaultVoice is the voice the agent answers with.
	DefaultVoice = "alloy"

	// DefaultInstructions prime the agent as a product-filtering assistant.
	DefaultInstructions = "You are an E-commerce agent. Your main task is to help users find products by filtering them based on their voice commands. Use the 'filter_products' tool when the user asks to find specific products. If you cannot fulfill the request with the available tools, respond naturally and explain what you can do."
)

// Server issues ephemeral session credentials over HTTP.
type Server struct {
	engine       *gin.Engine
	apiKey       string
	sessionsURL  string
	model        string
	voice        string
	instructions string
	httpClient   *http.Client
}

type ServerParams struct {
	// Provider API key. Required.
	APIKey string

	// Optional, defaults to DefaultSessionsURL.
	SessionsURL string

	// Optional, defaults to DefaultSessionModel.
	Model string

	// Optional, defaults to DefaultVoice.
	Voice string

	// Optional, defaults to DefaultInstructions.
	Instructions string

	// Optional origins allowed by CORS. Defaults to localhost origins.
	AllowedOrigins []string

	// Optional HTTP client for provider calls.
	HTTPClient *http.Client
}

func NewServer(params ServerParams) (*Server, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("an API key is required: set it in the environment or a .env file")
	}

	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	s := &Server{
		apiKey:       params.APIKey,
		sessionsURL:  cmp.Or(params.SessionsURL, DefaultSessionsURL),
		model:        cmp.Or(params.Model, DefaultSessionModel),
		voice:        cmp.Or(params.Voice, DefaultVoice),
		instructions: cmp.Or(params.Instructions, DefaultInstructions),
		httpClient:   httpClient,
	}

	origins := params.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost", "http://localhost:3000", "http://127.0.0.1:3000"}
	}

	engine := gin.Default()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"OPTIONS", "GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/", s.handleRoot)
	engine.POST("/session", s.handleCreateSession)

	s.engine = engine
	return s, nil
}

// Engine exposes the underlying router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Voice shopping credential backend is ready."})
}

// handleCreateSession mints one realtime session at the provider and hands
// the ephemeral client secret back. The API key stays server-side.
func (s *Server) handleCreateSession(c *gin.Context) {
	key, err := s.mintEphemeralKey(c)
	if err != nil {
		realtime.Logger().Error("Error creating realtime session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"detail": fmt.Sprintf("Error creating the realtime session. Verify the API key and that the model %q is available for your account. Specific error detail: %v", s.model, err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ephemeral_key": key})
}

func (s *Server) mintEphemeralKey(c *gin.Context) (_ string, err error) {
	tool, err := realtime.FilterProductsTool()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"model":        s.model,
		"instructions": s.instructions,
		"voice":        s.voice,
		"modalities":   []string{"audio", "text"},
		"tools": []map[string]any{{
			"type":        "function",
			"name":        tool.Name,
			"description": tool.Description,
			"parameters":  tool.ParamsJSONSchema,
		}},
		"tool_choice": "auto",
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling session request: %w", err)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.sessionsURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error building session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling realtime sessions endpoint: %w", err)
	}
	defer func() {
		if e := resp.Body.Close(); e != nil {
			realtime.Logger().Debug("Error closing sessions response body", "error", e)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading sessions response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("realtime sessions endpoint answered %s: %s", resp.Status, respBody)
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err = json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("malformed sessions response: %w", err)
	}
	if payload.ClientSecret.Value == "" {
		return "", fmt.Errorf("sessions response carries no client secret")
	}
	return payload.ClientSecret.Value, nil
}
