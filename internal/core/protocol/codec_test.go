package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestProtoCodec_EncodeDecode(t *testing.T) {
	codec := ProtoCodec{}
	h := &Header{
		MsgKey:         42,
		MsgType:        MsgTypeCustom,
		Topic:          7,
		DestClientType: 3,
		DestClientID:   -1,
		OrigClientType: 2,
		OrigClientID:   9,
		ReplyMsgKey:    11,
		AckKeys:        []int32{1, 5, 300},
		IsArchived:     true,
		Payload:        []byte("payload"),
	}

	b, err := codec.Encode(h)
	require.NoError(t, err)

	got, err := codec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestProtoCodec_EmptyHeader(t *testing.T) {
	codec := ProtoCodec{}
	b, err := codec.Encode(&Header{})
	require.NoError(t, err)
	assert.Empty(t, b)

	got, err := codec.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, &Header{}, got)
}

func TestProtoCodec_UnpackedAckKeysAndUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldAckKeys, protowire.VarintType)
	b = protowire.AppendVarint(b, 4)
	b = protowire.AppendTag(b, 99, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)
	b = protowire.AppendTag(b, fieldAckKeys, protowire.VarintType)
	b = protowire.AppendVarint(b, 8)

	got, err := ProtoCodec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 8}, got.AckKeys)
}

func TestProtoCodec_Malformed(t *testing.T) {
	codec := ProtoCodec{}

	_, err := codec.Decode([]byte{0x08})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	b := protowire.AppendTag(nil, fieldPayload, protowire.BytesType)
	b = protowire.AppendVarint(b, 10)
	_, err = codec.Decode(append(b, 1, 2))
	assert.ErrorIs(t, err, ErrMalformedHeader)

	_, err = codec.Encode(nil)
	assert.Error(t, err)
}

func TestPayloadMessages(t *testing.T) {
	logon := Logon{ClientType: 4, ClientID: 12, Name: "router"}
	var gotLogon Logon
	require.NoError(t, gotLogon.Unmarshal(logon.Marshal()))
	assert.Equal(t, logon, gotLogon)

	sub := Subscription{ClientType: 1, Topic: 3}
	var gotSub Subscription
	require.NoError(t, gotSub.Unmarshal(sub.Marshal()))
	assert.Equal(t, sub, gotSub)

	nack := NackDetails{Reason: 2, Details: "bad request"}
	var gotNack NackDetails
	require.NoError(t, gotNack.Unmarshal(nack.Marshal()))
	assert.Equal(t, nack, gotNack)
}
