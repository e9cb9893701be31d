package menu

import "strings"

// Action is one decoded user intent: which command to run, which view
// it targets, and an optional command argument.
type Action struct {
	Command string
	View    string
	Value   string
}

// Callback tokens ride inside platform callback payloads, which are
// capped at a few dozen bytes (Telegram allows 64). The format is
//
//	qbr|<session-id>|<command-code>|<view-code>|<value>
//
// with exactly four separators; the value keeps any further "|" bytes.
const (
	tokenPrefix    = "qbr"
	tokenSeparator = "|"
	tokenParts     = 5
)

// Codec translates between Actions and wire tokens using the command
// and view registries for name/code mapping.
type Codec struct {
	Commands *Registry
	Views    *Registry
}

func NewCodec(commands, views *Registry) *Codec {
	return &Codec{Commands: commands, Views: views}
}

// Encode builds the wire token for an action in a session. Names are
// shortened to their registered codes; an unregistered name rides
// as-is, which keeps tokens decodable for late-registered entries.
func (c *Codec) Encode(sessionID string, a Action) string {
	cmd := a.Command
	if code, ok := c.Commands.Code(cmd); ok {
		cmd = code
	}
	view := a.View
	if code, ok := c.Views.Code(view); ok {
		view = code
	}
	return strings.Join([]string{tokenPrefix, sessionID, cmd, view, a.Value}, tokenSeparator)
}

// Decode parses a wire token into its session id and raw action. It is
// a pure parse: codes are not resolved to names, and any malformation
// (wrong prefix, wrong arity, empty session or command) yields ok ==
// false. Foreign callback payloads routinely reach the decoder, so
// rejection is the quiet common case, not an error.
func Decode(token string) (sessionID string, a Action, ok bool) {
	parts := strings.SplitN(token, tokenSeparator, tokenParts)
	if len(parts) != tokenParts || parts[0] != tokenPrefix {
		return "", Action{}, false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", Action{}, false
	}
	return parts[1], Action{Command: parts[2], View: parts[3], Value: parts[4]}, true
}

// ResolveAction maps the raw codes in a decoded action back to
// canonical names. A command that resolves to nothing fails; a view is
// allowed to be empty for commands that ignore it.
func (c *Codec) ResolveAction(a Action) (Action, bool) {
	cmd, ok := c.Commands.Resolve(a.Command)
	if !ok {
		return Action{}, false
	}
	view := ""
	if a.View != "" {
		view, ok = c.Views.Resolve(a.View)
		if !ok {
			return Action{}, false
		}
	}
	return Action{Command: cmd, View: view, Value: a.Value}, true
}
