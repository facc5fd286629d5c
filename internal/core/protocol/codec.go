package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Codec turns a Header into the payload of one frame and back.
type Codec interface {
	Encode(h *Header) ([]byte, error)
	Decode(b []byte) (*Header, error)
}

// Header field numbers on the wire.
const (
	fieldMsgKey         protowire.Number = 1
	fieldMsgType        protowire.Number = 2
	fieldTopic          protowire.Number = 3
	fieldDestClientType protowire.Number = 4
	fieldDestClientID   protowire.Number = 5
	fieldOrigClientType protowire.Number = 6
	fieldOrigClientID   protowire.Number = 7
	fieldReplyMsgKey    protowire.Number = 8
	fieldAckKeys        protowire.Number = 9
	fieldIsArchived     protowire.Number = 10
	fieldPayload        protowire.Number = 11
)

var _ Codec = ProtoCodec{}

// ProtoCodec encodes headers in protobuf wire format.
type ProtoCodec struct{}

func (ProtoCodec) Encode(h *Header) ([]byte, error) {
	if h == nil {
		return nil, NewProtocolError(ErrorCodeProtocol, "encode nil header", ErrMalformedHeader)
	}
	b := make([]byte, 0, 48+len(h.Payload)+5*len(h.AckKeys))
	return AppendHeader(b, h), nil
}

// AppendHeader appends the encoded header to b.
func AppendHeader(b []byte, h *Header) []byte {
	b = appendVarint(b, fieldMsgKey, int64(h.MsgKey))
	b = appendVarint(b, fieldMsgType, int64(h.MsgType))
	b = appendVarint(b, fieldTopic, int64(h.Topic))
	b = appendVarint(b, fieldDestClientType, int64(h.DestClientType))
	b = appendVarint(b, fieldDestClientID, int64(h.DestClientID))
	b = appendVarint(b, fieldOrigClientType, int64(h.OrigClientType))
	b = appendVarint(b, fieldOrigClientID, int64(h.OrigClientID))
	b = appendVarint(b, fieldReplyMsgKey, int64(h.ReplyMsgKey))
	if len(h.AckKeys) > 0 {
		var packed []byte
		for _, k := range h.AckKeys {
			packed = protowire.AppendVarint(packed, uint64(int64(k)))
		}
		b = appendBytes(b, fieldAckKeys, packed)
	}
	b = appendBool(b, fieldIsArchived, h.IsArchived)
	b = appendBytes(b, fieldPayload, h.Payload)
	return b
}

func (ProtoCodec) Decode(b []byte) (*Header, error) {
	h := &Header{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case fieldMsgKey:
			h.MsgKey = int32(v)
		case fieldMsgType:
			h.MsgType = MsgType(int32(v))
		case fieldTopic:
			h.Topic = int32(v)
		case fieldDestClientType:
			h.DestClientType = int32(v)
		case fieldDestClientID:
			h.DestClientID = int32(v)
		case fieldOrigClientType:
			h.OrigClientType = int32(v)
		case fieldOrigClientID:
			h.OrigClientID = int32(v)
		case fieldReplyMsgKey:
			h.ReplyMsgKey = int32(v)
		case fieldAckKeys:
			if typ == protowire.VarintType {
				h.AckKeys = append(h.AckKeys, int32(v))
				return nil
			}
			for len(raw) > 0 {
				k, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return malformed(protowire.ParseError(n))
				}
				h.AckKeys = append(h.AckKeys, int32(k))
				raw = raw[n:]
			}
		case fieldIsArchived:
			h.IsArchived = protowire.DecodeBool(v)
		case fieldPayload:
			if typ != protowire.BytesType {
				return errWireType(num, typ)
			}
			h.Payload = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}
