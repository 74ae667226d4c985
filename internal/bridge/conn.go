/*
 * This file is part of Verba (https://github.com/verbalabs/verba).
 * Copyright (C) 2025 Verba Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// errClientDisconnected reports a write against a departed client. The
// session uses it to abandon an in-flight relay instead of draining the
// upstream stream nobody is listening to.
var errClientDisconnected = errors.New("client disconnected")

// Conn is the subset of a websocket connection the bridge uses. It is
// satisfied by *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// safeConn serializes writes and turns writes after close into no-ops that
// report errClientDisconnected, so a synthesis running against a departed
// client can stop relaying without failing the session or interleaving
// frames.
type safeConn struct {
	conn   Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newSafeConn(conn Conn) *safeConn {
	return &safeConn{conn: conn}
}

func (c *safeConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *safeConn) writeBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *safeConn) write(messageType int, data []byte) error {
	if c.closed.Load() {
		return errClientDisconnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errClientDisconnected
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.closed.Store(true)
		return errClientDisconnected
	}
	return nil
}

func (c *safeConn) writeError(message string) {
	c.writeJSON(errorFrame{Type: "error", Message: message})
}

func (c *safeConn) close() {
	if c.closed.Swap(true) {
		return
	}
	c.conn.Close()
}
