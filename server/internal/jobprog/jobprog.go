// Package jobprog defines the line-delimited JSON messages exchanged with the
// job process over its input and output streams.
package jobprog

import "io"

type Cmd string

const (
	CmdProduce = Cmd("produce")
	CmdClose   = Cmd("close")
)

// Request is sent by the job scheduler. For CmdProduce with BodySize > 0 the
// request is followed by a second JSON value holding the body as base64.
type Request struct {
	ID       int64  `json:"id"`
	Command  Cmd    `json:"command"`
	Ref      string `json:"ref,omitempty"`
	BodySize int64  `json:"body_size,omitempty"`

	Body io.Reader `json:"-"`
}

type Response struct {
	ID  int64  `json:"id"`
	Err string `json:"err,omitempty"`

	// KnownCommands is only set in the first, unsolicited response.
	KnownCommands []Cmd `json:"known_commands,omitempty"`

	Ref     string `json:"ref,omitempty"`
	Locator string `json:"locator,omitempty"`
	Phase   string `json:"phase,omitempty"`
}
