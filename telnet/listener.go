/*
 * rv64sim - telnet server, connection accept loop
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package telnet

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Server accepts telnet connections for the HTIF console. Only one
// connection is active at a time, matching HTIF's single mailbox: a
// new connection simply replaces whichever one was there before.
type Server struct {
	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	conn    net.Conn
	onInput func(byte)
}

// Start opens a listener on addr (host:port or :port) and begins
// accepting connections in the background.
func Start(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("telnet: failed to listen on %s: %w", addr, err)
	}
	s := &Server{listener: listener, shutdown: make(chan struct{})}
	s.wg.Add(1)
	go s.acceptLoop()
	slog.Info("telnet console listening on " + listener.Addr().String())
	return s, nil
}

// SetInput installs the callback invoked for every byte received from
// the connected terminal (wired to the HTIF console's PushInput).
func (s *Server) SetInput(fn func(byte)) {
	s.mu.Lock()
	s.onInput = fn
	s.mu.Unlock()
}

// input forwards one byte to whatever callback SetInput last installed.
func (s *Server) input(b byte) {
	s.mu.Lock()
	fn := s.onInput
	s.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

// WriteByte sends one byte to the currently connected terminal, if any
// (wired to HTIF's consoleOut callback). A write with no connection is
// silently dropped, matching a guest writing to a console no one is
// watching.
func (s *Server) WriteByte(b byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_, _ = conn.Write([]byte{b})
	}
}

// Stop closes the listener and any active connection.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()

		go handleClient(conn, s.input)
	}
}
