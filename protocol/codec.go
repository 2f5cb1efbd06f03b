package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when inbound text is not a valid envelope.
	ErrMalformed = errors.New("malformed envelope")
	// ErrNoParams is returned by the typed accessors when the envelope carries no params.
	ErrNoParams = errors.New("envelope has no params")
)

// Encode serializes an outbound request.
func Encode(req Request) ([]byte, error) {
	if req.TransactionID == "" {
		return nil, errors.New("missing transaction_id")
	}
	if !req.Action.Valid() || req.Action == ActionAck {
		return nil, fmt.Errorf("invalid outbound action %q", req.Action)
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request failed: %w", req.Action, err)
	}
	return b, nil
}

// Decode parses inbound text. The action is not validated here; unknown
// actions are left for the caller to drop.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &env, nil
}

// MarshalPayload turns an arbitrary caller value into the raw payload field.
func MarshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload failed: %w", err)
	}
	return b, nil
}

func (e *Envelope) PublishParams() (PublishParams, error) {
	var p PublishParams
	err := e.decodeParams(&p)
	return p, err
}

func (e *Envelope) SendParams() (SendParams, error) {
	var p SendParams
	err := e.decodeParams(&p)
	return p, err
}

func (e *Envelope) BroadcastParams() (BroadcastParams, error) {
	var p BroadcastParams
	err := e.decodeParams(&p)
	return p, err
}

// Welcome reads the client identity from a handshake envelope.
func (e *Envelope) Welcome() (WelcomeData, error) {
	var w WelcomeData
	if len(e.Data) == 0 {
		return w, errors.New("welcome has no data")
	}
	if err := json.Unmarshal(e.Data, &w); err != nil {
		return w, fmt.Errorf("%w: welcome data: %v", ErrMalformed, err)
	}
	return w, nil
}

func (e *Envelope) decodeParams(v any) error {
	if len(e.Params) == 0 {
		return ErrNoParams
	}
	if err := json.Unmarshal(e.Params, v); err != nil {
		return fmt.Errorf("%w: %s params: %v", ErrMalformed, e.Action, err)
	}
	return nil
}
