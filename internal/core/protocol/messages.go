package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Logon is the payload of a Logon header.
type Logon struct {
	ClientType int32
	ClientID   int32
	Name       string
}

// Subscription is the payload of Subscribe and Unsubscribe headers. A zero
// field matches any value on the dispatcher side.
type Subscription struct {
	ClientType int32
	ClientID   int32
	Topic      int32
}

// NackDetails is the payload of a Nack header.
type NackDetails struct {
	Reason  int32
	Details string
}

func (m *Logon) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, int64(m.ClientType))
	b = appendVarint(b, 2, int64(m.ClientID))
	b = appendString(b, 3, m.Name)
	return b
}

func (m *Logon) Unmarshal(b []byte) error {
	*m = Logon{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			m.ClientType = int32(v)
		case 2:
			m.ClientID = int32(v)
		case 3:
			if typ != protowire.BytesType {
				return errWireType(num, typ)
			}
			m.Name = string(raw)
		}
		return nil
	})
}

func (m *Subscription) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, int64(m.ClientType))
	b = appendVarint(b, 2, int64(m.ClientID))
	b = appendVarint(b, 3, int64(m.Topic))
	return b
}

func (m *Subscription) Unmarshal(b []byte) error {
	*m = Subscription{}
	return walkFields(b, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			m.ClientType = int32(v)
		case 2:
			m.ClientID = int32(v)
		case 3:
			m.Topic = int32(v)
		}
		return nil
	})
}

func (m *NackDetails) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, int64(m.Reason))
	b = appendString(b, 2, m.Details)
	return b
}

func (m *NackDetails) Unmarshal(b []byte) error {
	*m = NackDetails{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			m.Reason = int32(v)
		case 2:
			if typ != protowire.BytesType {
				return errWireType(num, typ)
			}
			m.Details = string(raw)
		}
		return nil
	})
}

func appendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// walkFields visits every field of an encoded message. Varint fields report
// their value in v, length-delimited fields their bytes in raw. Fixed-width
// and group fields are skipped.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if err := visit(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func malformed(cause error) error {
	return NewProtocolError(ErrorCodeProtocol, "decode", fmt.Errorf("%w: %w", ErrMalformedHeader, cause))
}

func errWireType(num protowire.Number, typ protowire.Type) error {
	return malformed(fmt.Errorf("field %d: unexpected wire type %d", num, typ))
}
