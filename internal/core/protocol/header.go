package protocol

import (
	"fmt"
	"slices"
)

// MsgType identifies what a Header carries.
type MsgType int32

const (
	MsgTypeUnknown MsgType = iota
	MsgTypeLogon
	MsgTypeAck
	MsgTypeNack
	MsgTypeSubscribe
	MsgTypeUnsubscribe
	MsgTypeCustom
	MsgTypeLogoff
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeLogon:
		return "logon"
	case MsgTypeAck:
		return "ack"
	case MsgTypeNack:
		return "nack"
	case MsgTypeSubscribe:
		return "subscribe"
	case MsgTypeUnsubscribe:
		return "unsubscribe"
	case MsgTypeCustom:
		return "custom"
	case MsgTypeLogoff:
		return "logoff"
	default:
		return fmt.Sprintf("msg_type(%d)", int32(t))
	}
}

// ClientKey addresses one client on the dispatcher.
type ClientKey struct {
	ClientType int32
	ClientID   int32
}

func (k ClientKey) String() string {
	return fmt.Sprintf("%d/%d", k.ClientType, k.ClientID)
}

// Header is the envelope of every message exchanged with the dispatcher.
// Payload holds the encoded sub-message for MsgType.
type Header struct {
	MsgKey         int32
	MsgType        MsgType
	Topic          int32
	DestClientType int32
	DestClientID   int32
	OrigClientType int32
	OrigClientID   int32
	ReplyMsgKey    int32
	AckKeys        []int32
	IsArchived     bool
	Payload        []byte
}

// Dest returns the destination address.
func (h *Header) Dest() ClientKey {
	return ClientKey{ClientType: h.DestClientType, ClientID: h.DestClientID}
}

// Orig returns the origin address stamped by the dispatcher.
func (h *Header) Orig() ClientKey {
	return ClientKey{ClientType: h.OrigClientType, ClientID: h.OrigClientID}
}

// IsBroadcast reports whether the message has no specific destination.
func (h *Header) IsBroadcast() bool {
	return h.DestClientType == 0
}

// IsTracked reports whether the message must be acknowledged by its
// destination: a custom, non-reply message sent to a specific client.
func (h *Header) IsTracked() bool {
	return h.MsgType == MsgTypeCustom && h.ReplyMsgKey == 0 && h.DestClientType > 0
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	c := *h
	c.AckKeys = slices.Clone(h.AckKeys)
	c.Payload = slices.Clone(h.Payload)
	return &c
}
