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

// Package micstream captures microphone audio through portaudio and exposes
// it as a realtime.AudioSource.
package micstream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/nlpodyssey/voicecart-go/realtime"
)

const (
	SampleRate = realtime.DefaultAudioSampleRate
	Channels   = realtime.DefaultAudioChannels

	// framesPerBuffer is 20ms of capture per read.
	framesPerBuffer = SampleRate / 50
)

// Microphone is an exclusively-owned capture stream of the default input
// device. Release stops the underlying hardware capture; it is safe to call
// once only, which the owning session guarantees.
type Microphone struct {
	mu       sync.Mutex
	buf      []int16
	stream   *portaudio.Stream
	started  bool
	released bool
}

// Acquire opens the default capture device. A failure to initialize the
// audio host or to open the device means capture permission was denied or
// no device is available; it is reported as a realtime.PermissionError.
func Acquire(context.Context) (realtime.AudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, realtime.PermissionErrorf("error initializing audio host: %v", err)
	}

	m := &Microphone{buf: make([]int16, framesPerBuffer)}
	stream, err := portaudio.OpenDefaultStream(Channels, 0, SampleRate, len(m.buf), &m.buf)
	if err != nil {
		if e := portaudio.Terminate(); e != nil {
			realtime.Logger().Debug("Error terminating audio host", "error", e)
		}
		return nil, realtime.PermissionErrorf("error opening capture device: %v", err)
	}
	m.stream = stream
	return m, nil
}

// ReadFrame blocks until the next 20ms capture frame is available. The
// stream starts on the first read so that no audio is captured before the
// session wants it.
func (m *Microphone) ReadFrame() (realtime.PCM16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil, realtime.ErrSourceReleased
	}

	if !m.started {
		if err := m.stream.Start(); err != nil {
			return nil, realtime.PermissionErrorf("error starting capture stream: %v", err)
		}
		m.started = true
	}

	if err := m.stream.Read(); err != nil {
		if m.released {
			return nil, realtime.ErrSourceReleased
		}
		if errors.Is(err, portaudio.InputOverflowed) {
			realtime.Logger().Debug("Audio input overflowed", "error", err)
		} else {
			return nil, fmt.Errorf("error reading capture stream: %w", err)
		}
	}

	frame := make(realtime.PCM16, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// Release stops and closes the capture stream and terminates the audio
// host. Afterwards ReadFrame returns realtime.ErrSourceReleased.
func (m *Microphone) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil
	}
	m.released = true

	var err error
	if m.started {
		if e := m.stream.Stop(); e != nil {
			err = errors.Join(err, fmt.Errorf("error stopping capture stream: %w", e))
		}
	}
	if e := m.stream.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("error closing capture stream: %w", e))
	}
	if e := portaudio.Terminate(); e != nil {
		err = errors.Join(err, fmt.Errorf("error terminating audio host: %w", e))
	}
	return err
}
