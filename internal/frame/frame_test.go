package frame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMessage_SplitAcrossChunks(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte(`{"jsonrpc":"2.0","id":1,"meth`)))
	_, ok, err := p.ReadMessage()
	require.False(t, ok)
	require.NoError(t, err)

	require.NoError(t, p.Append([]byte("od\":\"tools/call\"}\n")))
	line, ok, err := p.ReadMessage()
	require.True(t, ok)
	require.NoError(t, err)
	require.Contains(t, string(line), "tools/call")
}

func TestReadMessage_CRLF(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\r\n")))
	line, ok, err := p.ReadMessage()
	require.True(t, ok)
	require.NoError(t, err)
	require.False(t, strings.HasSuffix(string(line), "\r"))
}

func TestReadMessage_EmptyLinesSkipped(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte("\n\n{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n\n")))
	line, ok, err := p.ReadMessage()
	require.True(t, ok)
	require.NoError(t, err)
	require.Contains(t, string(line), "ping")

	_, ok, err = p.ReadMessage()
	require.False(t, ok)
	require.NoError(t, err)
}

func TestReadMessage_InvalidJSON(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte("not json\n")))
	_, ok, err := p.ReadMessage()
	require.True(t, ok)
	require.Error(t, err)
}

func TestReadMessage_BadSchema(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte(`{"jsonrpc":"2.0"}`+"\n")))
	_, ok, err := p.ReadMessage()
	require.True(t, ok)
	require.Error(t, err)
}

func TestAppend_BufferOverflowClearsBuffer(t *testing.T) {
	p := New(8)
	err := p.Append([]byte("123456789"))
	require.Error(t, err)
	require.Equal(t, 0, p.PendingBytes())
}

func TestReadAll_DrainsMultipleMessages(t *testing.T) {
	p := New(0)
	msgs := `{"jsonrpc":"2.0","id":1,"method":"a"}
{"jsonrpc":"2.0","id":2,"method":"b"}
{"jsonrpc":"2.0","id":3,"method":"c"}
`
	require.NoError(t, p.Append([]byte(msgs)))
	lines, errs := p.ReadAll()
	require.Len(t, lines, 3)
	require.Len(t, errs, 3)
	for _, e := range errs {
		require.NoError(t, e)
	}
	require.Equal(t, 0, p.PendingBytes())
}

func TestClear(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Append([]byte("partial")))
	p.Clear()
	require.Equal(t, 0, p.PendingBytes())
}

func TestPendingBytes_UTF8ByteAccounting(t *testing.T) {
	p := New(0)
	// Multi-byte UTF-8 content must be counted in bytes, never code points.
	require.NoError(t, p.Append([]byte(`{"jsonrpc":"2.0","id":1,"method":"café-tool-名前"}`)))
	require.Equal(t, len(`{"jsonrpc":"2.0","id":1,"method":"café-tool-名前"}`), p.PendingBytes())
}
