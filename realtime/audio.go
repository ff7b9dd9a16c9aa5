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
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/nlpodyssey/voicecart-go/asyncqueue"
)

const (
	DefaultAudioSampleRate = 24000
	DefaultAudioChannels   = 1
)

// PCM16 is a frame of little-endian 16-bit mono PCM samples, the only audio
// format the session transmits.
type PCM16 []int16

func (p PCM16) Len() int { return len(p) }

func (p PCM16) Bytes() []byte {
	b := make([]byte, len(p)*2)
	for i, v := range p {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

// Base64 returns the frame encoded the way the wire protocol expects audio
// payloads.
func (p PCM16) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Bytes())
}

func (p PCM16) Int() []int {
	result := make([]int, len(p))
	for i, v := range p {
		result[i] = int(v)
	}
	return result
}

// ErrSourceReleased is returned by AudioSource.ReadFrame once the source has
// been released; it signals a normal end of the outbound audio stream.
var ErrSourceReleased = errors.New("audio source released")

// AudioSource is a stream of capture frames exclusively owned by the active
// session. Release stops the underlying hardware capture; afterwards
// ReadFrame returns ErrSourceReleased. The session guarantees Release is
// invoked exactly once on every exit path.
type AudioSource interface {
	// ReadFrame blocks until the next capture frame is available.
	ReadFrame() (PCM16, error)

	// Release stops the underlying capture and unblocks pending reads.
	Release() error
}

// StreamedAudioSource is a queue-backed AudioSource. Push frames into it
// with AddFrame; it stands in for a microphone wherever audio originates
// from somewhere else (tests, file playback).
type StreamedAudioSource struct {
	queue    *asyncqueue.Queue[PCM16]
	released atomic.Bool
}

func NewStreamedAudioSource() *StreamedAudioSource {
	return &StreamedAudioSource{queue: asyncqueue.New[PCM16]()}
}

// AddFrame appends a frame to the stream. Frames added after Release are
// dropped.
func (s *StreamedAudioSource) AddFrame(frame PCM16) {
	if s.released.Load() {
		return
	}
	s.queue.Put(frame)
}

func (s *StreamedAudioSource) ReadFrame() (PCM16, error) {
	if s.released.Load() {
		return nil, ErrSourceReleased
	}
	frame := s.queue.Get()
	if frame == nil {
		return nil, ErrSourceReleased
	}
	return frame, nil
}

func (s *StreamedAudioSource) Release() error {
	if s.released.CompareAndSwap(false, true) {
		// A nil frame unblocks a pending ReadFrame.
		s.queue.Put(nil)
	}
	return nil
}
