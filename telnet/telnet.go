/*
 * rv64sim - telnet protocol engine for the HTIF console
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

// Package telnet negotiates a plain binary telnet session and streams
// bytes between the remote terminal and the HTIF console device.
// Unlike the teacher's multi-terminal 3270/1052 switchboard, there is
// exactly one guest console here, so the per-device registry and
// terminal-type negotiation are gone: every connection is the same
// session, and only the negotiation state machine survives.
package telnet

import (
	"fmt"
	"net"
)

const (
	tnIAC  byte = 255 // protocol delim
	tnDONT byte = 254
	tnDO   byte = 253
	tnWONT byte = 252
	tnWILL byte = 251
	tnSB   byte = 250
	tnSE   byte = 240

	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL
	tnStateDO
	tnStateDONT
	tnStateWONT
	tnStateSB // inside a subnegotiation, skip to SE

	tnOptionBinary byte = 0
	tnOptionEcho   byte = 1
	tnOptionSGA    byte = 3

	tnFlagWill uint8 = 0x01
	tnFlagDont uint8 = 0x02
)

var initString = []byte{
	tnIAC, tnWILL, tnOptionEcho,
	tnIAC, tnWILL, tnOptionSGA,
	tnIAC, tnWILL, tnOptionBinary,
	tnIAC, tnDO, tnOptionBinary,
}

type session struct {
	conn        net.Conn
	state       int
	optionState [256]uint8
}

func (s *session) sendOption(verb, option byte) {
	_, _ = s.conn.Write([]byte{tnIAC, verb, option})
}

func (s *session) handleDO(opt byte) {
	switch opt {
	case tnOptionBinary, tnOptionEcho, tnOptionSGA:
		// already offered WILL; nothing further to negotiate
	default:
		if s.optionState[opt]&tnFlagDont == 0 {
			s.optionState[opt] |= tnFlagDont
			s.sendOption(tnWONT, opt)
		}
	}
}

func (s *session) handleWILL(opt byte) {
	switch opt {
	case tnOptionBinary:
		s.optionState[opt] |= tnFlagWill
	case tnOptionEcho, tnOptionSGA:
		// client offering to take over echo/SGA: decline, server drives both
		s.sendOption(tnDONT, opt)
	default:
		s.sendOption(tnDONT, opt)
	}
}

// handleClient runs the negotiation state machine for one connection,
// forwarding every data byte to onInput (wired to the HTIF console's
// PushInput) until the peer disconnects.
func handleClient(conn net.Conn, onInput func(byte)) {
	defer conn.Close()

	s := &session{conn: conn, state: tnStateData}
	if _, err := conn.Write(initString); err != nil {
		return
	}

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			b := buf[i]
			switch s.state {
			case tnStateData:
				if b == tnIAC {
					s.state = tnStateIAC
				} else if onInput != nil {
					onInput(b)
				}
			case tnStateIAC:
				switch b {
				case tnIAC:
					if onInput != nil {
						onInput(tnIAC)
					}
					s.state = tnStateData
				case tnWILL:
					s.state = tnStateWILL
				case tnWONT:
					s.state = tnStateWONT
				case tnDO:
					s.state = tnStateDO
				case tnDONT:
					s.state = tnStateDONT
				case tnSB:
					s.state = tnStateSB
				default:
					s.state = tnStateData
				}
			case tnStateWILL:
				s.handleWILL(b)
				s.state = tnStateData
			case tnStateWONT:
				s.state = tnStateData
			case tnStateDO:
				s.handleDO(b)
				s.state = tnStateData
			case tnStateDONT:
				s.state = tnStateData
			case tnStateSB:
				if b == tnSE {
					s.state = tnStateData
				}
			default:
				fmt.Printf("telnet: unexpected state %d\n", s.state)
				s.state = tnStateData
			}
		}
	}
}
