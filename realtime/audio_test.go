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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16(t *testing.T) {
	frame := PCM16{0x0102, -1}

	assert.Equal(t, 2, frame.Len())
	assert.Equal(t, []byte{0x02, 0x01, 0xFF, 0xFF}, frame.Bytes())
	assert.Equal(t, base64.StdEncoding.EncodeToString(frame.Bytes()), frame.Base64())
	assert.Equal(t, []int{0x0102, -1}, frame.Int())
}

func TestStreamedAudioSource(t *testing.T) {
	t.Run("frames are read in order", func(t *testing.T) {
		s := NewStreamedAudioSource()
		s.AddFrame(PCM16{1})
		s.AddFrame(PCM16{2})

		frame, err := s.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, PCM16{1}, frame)

		frame, err = s.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, PCM16{2}, frame)
	})

	t.Run("release unblocks a pending read", func(t *testing.T) {
		s := NewStreamedAudioSource()

		errCh := make(chan error, 1)
		go func() {
			_, err := s.ReadFrame()
			errCh <- err
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, s.Release())

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrSourceReleased)
		case <-time.After(time.Second):
			t.Fatal("ReadFrame did not unblock after Release")
		}
	})

	t.Run("reads after release fail", func(t *testing.T) {
		s := NewStreamedAudioSource()
		require.NoError(t, s.Release())

		_, err := s.ReadFrame()
		assert.ErrorIs(t, err, ErrSourceReleased)
	})

	t.Run("frames added after release are dropped", func(t *testing.T) {
		s := NewStreamedAudioSource()
		require.NoError(t, s.Release())
		s.AddFrame(PCM16{1})

		_, err := s.ReadFrame()
		assert.ErrorIs(t, err, ErrSourceReleased)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		s := NewStreamedAudioSource()
		require.NoError(t, s.Release())
		require.NoError(t, s.Release())
	})
}
