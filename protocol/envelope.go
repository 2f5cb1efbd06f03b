package protocol

import "encoding/json"

type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionPublish     Action = "publish"
	ActionSend        Action = "send"
	ActionBroadcast   Action = "broadcast"
	ActionAck         Action = "ack"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Message is the reason code the server attaches to an envelope.
type Message string

const (
	MessageOK                  Message = "ok"
	MessageNoEffect            Message = "no effect"
	MessageUnprocessableEntity Message = "unprocessable entity"
	MessagePong                Message = "pong"
)

// Envelope is the unit exchanged with the server in both directions.
// Data and Params are left undecoded; use the typed accessors to read them.
type Envelope struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Action        Action          `json:"action"`
	Status        Status          `json:"status,omitempty"`
	Message       Message         `json:"message,omitempty"`
	Timestamp     int64           `json:"timestamp,omitempty"`
	Runtime       int64           `json:"runtime,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// Request is an outbound action. Only these three fields go on the wire.
type Request struct {
	TransactionID string `json:"transaction_id"`
	Action        Action `json:"action"`
	Params        any    `json:"params"`
}

type ChannelParams struct {
	Channel string `json:"channel"`
}

type PublishParams struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SendParams struct {
	FromClientID string          `json:"from_client_id,omitempty"`
	ToClientID   string          `json:"to_client_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type BroadcastParams struct {
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WelcomeData is the data block of the first message a server sends.
type WelcomeData struct {
	ClientID string `json:"client_id"`
}

func (a Action) Valid() bool {
	switch a {
	case ActionSubscribe, ActionUnsubscribe, ActionPublish, ActionSend, ActionBroadcast, ActionAck:
		return true
	}
	return false
}

func (e *Envelope) Succeeded() bool {
	return e.Status == StatusSuccess
}
