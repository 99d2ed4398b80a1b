// Package control lets other processes drive a running panel over a Unix
// socket. Each request and response is one JSON object per line.
package control

// Commands understood by the server.
const (
	CmdStart  = "start"
	CmdStop   = "stop"
	CmdToggle = "toggle"
	CmdStatus = "status"
	CmdCopy   = "copy"
	CmdClear  = "clear"
	CmdClose  = "close"
)

type Command struct {
	Cmd      string `json:"cmd"`
	Language string `json:"language,omitempty"`
}

type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	Language string `json:"language,omitempty"`
	Level    string `json:"level,omitempty"`
	Status   string `json:"status,omitempty"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}
