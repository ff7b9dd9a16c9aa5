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
	"errors"
	"fmt"
)

// CredentialError is returned when the credential backend is unreachable or
// rejects the session request. The session never starts.
type CredentialError struct{ error }

func NewCredentialError(message string) *CredentialError {
	return &CredentialError{errors.New(message)}
}

func CredentialErrorf(format string, a ...any) *CredentialError {
	return &CredentialError{fmt.Errorf(format, a...)}
}

func (e *CredentialError) Unwrap() error { return e.error }

// PermissionError is returned when the audio capture device cannot be
// acquired, either because access was denied or no device is available.
type PermissionError struct{ error }

func NewPermissionError(message string) *PermissionError {
	return &PermissionError{errors.New(message)}
}

func PermissionErrorf(format string, a ...any) *PermissionError {
	return &PermissionError{fmt.Errorf(format, a...)}
}

func (e *PermissionError) Unwrap() error { return e.error }

// NegotiationError is returned when the remote endpoint rejects the session
// handshake or the handshake times out. All acquired resources are released
// before it propagates.
type NegotiationError struct{ error }

func NewNegotiationError(message string) *NegotiationError {
	return &NegotiationError{errors.New(message)}
}

func NegotiationErrorf(format string, a ...any) *NegotiationError {
	return &NegotiationError{fmt.Errorf(format, a...)}
}

func (e *NegotiationError) Unwrap() error { return e.error }

// TransportError is returned when an established channel closes or errors
// mid-session. It triggers teardown.
type TransportError struct{ error }

func NewTransportError(message string) *TransportError {
	return &TransportError{errors.New(message)}
}

func TransportErrorf(format string, a ...any) *TransportError {
	return &TransportError{fmt.Errorf(format, a...)}
}

func (e *TransportError) Unwrap() error { return e.error }

// ProtocolError marks a single malformed or otherwise unacceptable inbound
// message. It is the only error kind recovered locally: the message is
// logged and skipped, the session continues.
type ProtocolError struct{ error }

func NewProtocolError(message string) *ProtocolError {
	return &ProtocolError{errors.New(message)}
}

func ProtocolErrorf(format string, a ...any) *ProtocolError {
	return &ProtocolError{fmt.Errorf(format, a...)}
}

func (e *ProtocolError) Unwrap() error { return e.error }

// AgentError is returned when the remote agent sends an explicit error
// message. The session is fatally compromised and torn down.
type AgentError struct{ error }

func NewAgentError(message string) *AgentError {
	return &AgentError{errors.New(message)}
}

func AgentErrorf(format string, a ...any) *AgentError {
	return &AgentError{fmt.Errorf(format, a...)}
}

func (e *AgentError) Unwrap() error { return e.error }

// AlreadyActiveError is returned by Client.Start while another session is
// active. The existing session is not disturbed.
type AlreadyActiveError struct{ error }

func NewAlreadyActiveError() *AlreadyActiveError {
	return &AlreadyActiveError{errors.New("a session is already active")}
}

func (e *AlreadyActiveError) Unwrap() error { return e.error }

// CanceledError is returned when Stop is requested while an operation is
// still in flight; the operation's eventual result is discarded.
type CanceledError struct{ error }

func NewCanceledError(message string) *CanceledError {
	return &CanceledError{errors.New(message)}
}

func CanceledErrorf(format string, a ...any) *CanceledError {
	return &CanceledError{fmt.Errorf(format, a...)}
}

func (e *CanceledError) Unwrap() error { return e.error }
