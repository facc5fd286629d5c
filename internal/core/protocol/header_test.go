package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader_IsTracked(t *testing.T) {
	cases := []struct {
		name string
		h    Header
		want bool
	}{
		{"custom to client", Header{MsgType: MsgTypeCustom, DestClientType: 2}, true},
		{"broadcast", Header{MsgType: MsgTypeCustom}, false},
		{"reply", Header{MsgType: MsgTypeCustom, DestClientType: 2, ReplyMsgKey: 4}, false},
		{"ack", Header{MsgType: MsgTypeAck, DestClientType: 2}, false},
		{"subscribe", Header{MsgType: MsgTypeSubscribe, DestClientType: 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.h.IsTracked())
		})
	}
}

func TestHeader_CloneIsDeep(t *testing.T) {
	h := &Header{MsgKey: 1, AckKeys: []int32{1, 2}, Payload: []byte("abc")}
	c := h.Clone()
	c.AckKeys[0] = 9
	c.Payload[0] = 'z'
	c.MsgKey = 3

	assert.Equal(t, int32(1), h.AckKeys[0])
	assert.Equal(t, "abc", string(h.Payload))
	assert.Equal(t, int32(1), h.MsgKey)
	assert.Nil(t, (*Header)(nil).Clone())
}

func TestEnumsString(t *testing.T) {
	assert.Equal(t, "custom", MsgTypeCustom.String())
	assert.Equal(t, "msg_type(42)", MsgType(42).String())
	assert.Equal(t, "retry_connect", RetryConnect.String())
	assert.Equal(t, "server_not_responding", ReasonServerNotResponding.String())
	assert.True(t, ReasonServerDisconnected.Retryable())
	assert.False(t, ReasonManual.Retryable())
	assert.False(t, ReasonNone.Retryable())
	assert.Equal(t, "3/4", ClientKey{ClientType: 3, ClientID: 4}.String())
}
