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
	"io"
	"net/http"
	"strings"
)

// DefaultCredentialEndpoint is the trusted backend endpoint issuing
// ephemeral session credentials.
const DefaultCredentialEndpoint = "http://localhost:8000/session"

// CredentialFetcher obtains a short-lived session credential from the
// trusted backend. It makes one outbound request and never retries: the
// caller decides.
type CredentialFetcher struct {
	endpoint   string
	httpClient *http.Client
}

type CredentialFetcherParams struct {
	// Optional, defaults to DefaultCredentialEndpoint.
	Endpoint string

	// Optional, defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func NewCredentialFetcher(params CredentialFetcherParams) *CredentialFetcher {
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CredentialFetcher{
		endpoint:   cmp.Or(params.Endpoint, DefaultCredentialEndpoint),
		httpClient: httpClient,
	}
}

// Fetch requests one ephemeral credential. A transport failure means the
// backend is unavailable; any non-2xx response means it rejected the
// request, with the response's diagnostic detail carried in the error.
func (f *CredentialFetcher) Fetch(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, http.NoBody)
	if err != nil {
		return "", CredentialErrorf("error building credential request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", CredentialErrorf("credential backend unavailable: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			Logger().Debug("Error closing credential response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", CredentialErrorf("error reading credential response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", CredentialErrorf("credential backend rejected request: %s", rejectionDetail(body, resp.Status))
	}

	var payload struct {
		EphemeralKey string `json:"ephemeral_key"`
	}
	if err = json.Unmarshal(body, &payload); err != nil {
		return "", CredentialErrorf("malformed credential response: %v", err)
	}
	if payload.EphemeralKey == "" {
		return "", NewCredentialError("credential backend did not provide an ephemeral key")
	}

	return Credential(payload.EphemeralKey), nil
}

// rejectionDetail extracts the backend's diagnostic payload, falling back
// to the HTTP status line.
func rejectionDetail(body []byte, status string) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	if detail := strings.TrimSpace(string(body)); detail != "" {
		return detail
	}
	return status
}
