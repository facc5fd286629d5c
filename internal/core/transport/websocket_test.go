package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
	"github.com/zeusync/msgcomm/internal/core/protocol"
)

func TestWebSocketDialer_FramesOverMessages(t *testing.T) {
	received := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- data

		b, _ := protocol.ProtoCodec{}.Encode(&protocol.Header{MsgKey: 5, MsgType: protocol.MsgTypeAck})
		frame := protocol.AppendFrame(nil, b)
		// split one frame across two messages with a text message between
		_ = ws.WriteMessage(websocket.BinaryMessage, frame[:3])
		_ = ws.WriteMessage(websocket.TextMessage, []byte("ignored"))
		_ = ws.WriteMessage(websocket.BinaryMessage, frame[3:])

		_, _, _ = ws.ReadMessage()
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	h := NewHandler(Config{Addr: addr, DialTimeout: time.Second}, NewWebSocketDialer("/"), nil, log.NewNop())
	rec := &frameRecorder{}
	h.OnFrame(rec.record)

	require.NoError(t, h.Connect(context.Background()))
	defer h.Disconnect()
	require.NoError(t, h.BeginReading())
	assert.True(t, h.CheckConnection())

	sent := &protocol.Header{MsgKey: 1, MsgType: protocol.MsgTypeLogon}
	require.NoError(t, h.SendHeader(sent))

	select {
	case data := <-received:
		payload, err := protocol.ReadFrame(bytes.NewReader(data), protocol.DefaultMaxFrameSize)
		require.NoError(t, err)
		got, err := protocol.ProtoCodec{}.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, sent, got)
	case <-time.After(time.Second):
		t.Fatal("server did not receive the frame")
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), rec.snapshot()[0].Header.MsgKey)
}
