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
	"sync"

	"github.com/gorilla/websocket"
)

// ControlChannel is the bidirectional logical stream, layered on the
// negotiated transport, carrying JSON-framed protocol messages. ReadMessage
// blocks; the protocol handler is its only reader, so inbound frames are
// interpreted strictly in arrival order.
type ControlChannel interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// wsControlChannel adapts a websocket connection to the ControlChannel
// surface. Writes are serialized: the audio stream task and the protocol
// handler write concurrently.
type wsControlChannel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSControlChannel(conn *websocket.Conn) *wsControlChannel {
	return &wsControlChannel{conn: conn}
}

func (c *wsControlChannel) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsControlChannel) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsControlChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// isNormalClosure reports whether a read error is an expected closure
// rather than a transport failure.
func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
