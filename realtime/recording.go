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
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVRecorder writes PCM frames to a WAV stream. The session uses it to
// keep an offline copy of the audio transmitted to the remote endpoint.
type WAVRecorder struct {
	enc    *wav.Encoder
	closer io.Closer
}

// NewWAVRecorder writes 16-bit mono WAV data to ws at the session sample
// rate.
func NewWAVRecorder(ws io.WriteSeeker) *WAVRecorder {
	return &WAVRecorder{
		enc: wav.NewEncoder(ws, DefaultAudioSampleRate, 16, DefaultAudioChannels, 1),
	}
}

// CreateWAVRecorderFile records to a newly created file at path.
func CreateWAVRecorderFile(path string) (*WAVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating recording file: %w", err)
	}
	r := NewWAVRecorder(f)
	r.closer = f
	return r, nil
}

// Write appends one frame to the recording.
func (r *WAVRecorder) Write(frame PCM16) error {
	err := r.enc.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: DefaultAudioChannels,
			SampleRate:  DefaultAudioSampleRate,
		},
		Data:           frame.Int(),
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("error writing WAV data: %w", err)
	}
	return nil
}

// Close finalizes the WAV headers. Must be called for the recording to be
// playable.
func (r *WAVRecorder) Close() error {
	var err error
	if e := r.enc.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("error closing WAV encoder: %w", e))
	}
	if r.closer != nil {
		if e := r.closer.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing recording file: %w", e))
		}
	}
	return err
}

// teeSource duplicates the frames of an AudioSource into a recorder.
type teeSource struct {
	AudioSource
	recorder *WAVRecorder
}

// TeeSource wraps source so that every frame read by the session is also
// appended to the recorder. The recorder is closed when the source is
// released. Recording failures never disturb the live session; they are
// logged and recording stops.
func TeeSource(source AudioSource, recorder *WAVRecorder) AudioSource {
	return &teeSource{AudioSource: source, recorder: recorder}
}

func (t *teeSource) ReadFrame() (PCM16, error) {
	frame, err := t.AudioSource.ReadFrame()
	if err == nil && t.recorder != nil {
		if e := t.recorder.Write(frame); e != nil {
			Logger().Warn("Recording stopped", "error", e)
			t.closeRecorder()
		}
	}
	return frame, err
}

func (t *teeSource) Release() error {
	t.closeRecorder()
	return t.AudioSource.Release()
}

func (t *teeSource) closeRecorder() {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.Close(); err != nil {
		Logger().Warn("Error closing recorder", "error", err)
	}
	t.recorder = nil
}
