package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUsesCodes(t *testing.T) {
	c := NewCodec(builtinCommands(), builtinViews())

	token := c.Encode("a1b2c3d4e5f60718", Action{Command: CmdGoTo, View: ViewDownloaderMenu})
	assert.Equal(t, "qbr|a1b2c3d4e5f60718|gt|dm|", token)
}

func TestTokenFitsCallbackDataLimit(t *testing.T) {
	c := NewCodec(builtinCommands(), builtinViews())

	// Telegram rejects callback payloads over 64 bytes.
	token := c.Encode("a1b2c3d4e5f60718", Action{
		Command: CmdSelectDownloader,
		View:    ViewTasks,
		Value:   "my-seedbox-downloader",
	})
	assert.LessOrEqual(t, len(token), 64, "token %q too long", token)
}

func TestDecodeRoundTrip(t *testing.T) {
	c := NewCodec(builtinCommands(), builtinViews())

	token := c.Encode("deadbeef00000000", Action{
		Command: CmdSelectDownloader,
		View:    ViewTasks,
		Value:   "main",
	})

	sid, raw, ok := Decode(token)
	require.True(t, ok)
	assert.Equal(t, "deadbeef00000000", sid)

	action, ok := c.ResolveAction(raw)
	require.True(t, ok)
	assert.Equal(t, CmdSelectDownloader, action.Command)
	assert.Equal(t, ViewTasks, action.View)
	assert.Equal(t, "main", action.Value)
}

func TestDecodeKeepsSeparatorInValue(t *testing.T) {
	_, raw, ok := Decode("qbr|deadbeef00000000|sd|ts|a|b|c")
	require.True(t, ok)
	assert.Equal(t, "a|b|c", raw.Value)
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	bad := []string{
		"",
		"qbr",
		"qbr|sid|gt",
		"qbr|sid|gt|dm",
		"xxx|sid|gt|dm|",
		"qbr||gt|dm|",
		"qbr|sid||dm|",
		"completely unrelated payload",
	}
	for _, token := range bad {
		if _, _, ok := Decode(token); ok {
			t.Errorf("Decode(%q) accepted a malformed token", token)
		}
	}
}

func TestDecodeIsPureParse(t *testing.T) {
	// Unknown codes survive decoding; resolution is a separate step
	// and is where they fail.
	_, raw, ok := Decode("qbr|deadbeef00000000|zz|yy|v")
	require.True(t, ok)
	assert.Equal(t, "zz", raw.Command)

	c := NewCodec(builtinCommands(), builtinViews())
	_, ok = c.ResolveAction(raw)
	assert.False(t, ok)
}

func TestResolveActionAcceptsNames(t *testing.T) {
	c := NewCodec(builtinCommands(), builtinViews())

	action, ok := c.ResolveAction(Action{Command: "go_to", View: "tasks"})
	require.True(t, ok)
	assert.Equal(t, CmdGoTo, action.Command)
	assert.Equal(t, ViewTasks, action.View)
}

func TestResolveActionAllowsEmptyView(t *testing.T) {
	c := NewCodec(builtinCommands(), builtinViews())

	action, ok := c.ResolveAction(Action{Command: "rf"})
	require.True(t, ok)
	assert.Equal(t, CmdRefresh, action.Command)
	assert.Empty(t, action.View)
}
