// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"encoding/json"
	"fmt"
)

// Keymapping maps GBA buttons to keyboard key names understood by the
// core. It is passed to the core as a JSON object, the format the
// core's argument parser expects.
type Keymapping struct {
	Up     string `json:"up" yaml:"up"`
	Down   string `json:"down" yaml:"down"`
	Left   string `json:"left" yaml:"left"`
	Right  string `json:"right" yaml:"right"`
	A      string `json:"a" yaml:"a"`
	B      string `json:"b" yaml:"b"`
	L      string `json:"l" yaml:"l"`
	R      string `json:"r" yaml:"r"`
	Select string `json:"select" yaml:"select"`
	Start  string `json:"start" yaml:"start"`
}

// DefaultKeymapping is the layout used when the configuration file
// does not provide one.
func DefaultKeymapping() Keymapping {
	return Keymapping{
		Up:     "Up",
		Down:   "Down",
		Left:   "Left",
		Right:  "Right",
		A:      "Z",
		B:      "X",
		L:      "A",
		R:      "S",
		Select: "Backspace",
		Start:  "Return",
	}
}

// Args is the command-line surface of the core process.
type Args struct {
	Keymapping Keymapping

	// SignalingAddr is the signaling server the core uses to find the
	// peer.
	SignalingAddr string

	// ICEServers are STUN/TURN URIs handed to the core's peer
	// connection.
	ICEServers []string

	// SessionID is the link code shared by both peers. Empty starts a
	// single-player session with no peer link.
	SessionID string
}

// Argv renders the arguments in the order the core expects. Every
// value is passed as a separate argv element, never through a shell.
func (a Args) Argv() ([]string, error) {
	keymapping, err := json.Marshal(a.Keymapping)
	if err != nil {
		return nil, fmt.Errorf("encoding keymapping: %w", err)
	}

	argv := []string{
		"--keymapping", string(keymapping),
		"--signaling-server-addr", a.SignalingAddr,
	}
	for _, server := range a.ICEServers {
		argv = append(argv, "--ice-servers", server)
	}
	if a.SessionID != "" {
		argv = append(argv, "--session-id", a.SessionID)
	}
	return argv, nil
}
