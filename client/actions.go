package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Subscribe registers h for channel and asks the server to subscribe. The
// callback is live before the ack arrives; a failed ack removes it again
// unless it has been replaced in the meantime.
func (c *Client) Subscribe(channel string, h Handler) (*Transaction, error) {
	if h == nil {
		return nil, errors.New("subscribe: nil handler")
	}
	if err := c.ready(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	sub := c.channels.set(channel, h)
	rollback := func() { c.channels.revert(channel, sub) }
	tx, err := c.request(protocol.ActionSubscribe, channel, protocol.ChannelParams{Channel: channel}, rollback)
	if err != nil {
		rollback()
		return nil, err
	}
	return tx, nil
}

// Unsubscribe drops the local callback for channel, then tells the server.
func (c *Client) Unsubscribe(channel string) (*Transaction, error) {
	if err := c.ready(); err != nil {
		return nil, fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	c.channels.remove(channel)
	return c.request(protocol.ActionUnsubscribe, channel, protocol.ChannelParams{Channel: channel}, nil)
}

// Publish hands payload to every subscriber of channel.
func (c *Client) Publish(channel string, payload any) (*Transaction, error) {
	raw, err := protocol.MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", channel, err)
	}
	return c.request(protocol.ActionPublish, channel, protocol.PublishParams{Channel: channel, Payload: raw}, nil)
}

// Send delivers payload to a single client.
func (c *Client) Send(clientID string, payload any) (*Transaction, error) {
	raw, err := protocol.MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", clientID, err)
	}
	return c.request(protocol.ActionSend, clientID, protocol.SendParams{ToClientID: clientID, Payload: raw}, nil)
}

// Broadcast delivers payload to every other connected client.
func (c *Client) Broadcast(payload any) (*Transaction, error) {
	raw, err := protocol.MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	return c.request(protocol.ActionBroadcast, "", protocol.BroadcastParams{Payload: raw}, nil)
}

// request parks a transaction, then writes it. The pending entry exists
// before the bytes leave, so the ack can never outrun it.
func (c *Client) request(action protocol.Action, target string, params any, rollback func()) (*Transaction, error) {
	if err := c.ready(); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	tx := newTransaction(uuid.NewString(), action, target)
	tx.rollback = rollback
	for !c.transactions.add(tx) {
		tx.id = uuid.NewString()
	}

	data, err := protocol.Encode(protocol.Request{
		TransactionID: tx.id,
		Action:        action,
		Params:        params,
	})
	if err != nil {
		c.transactions.take(tx.id)
		return nil, err
	}

	c.journalBegin(tx)

	if err := c.transport.Send(data); err != nil {
		c.transactions.take(tx.id)
		c.journalAbort(tx)
		return nil, fmt.Errorf("%s: write failed: %w", action, err)
	}

	c.logger.WithFields(logrus.Fields{
		"action":         action,
		"transaction_id": tx.id,
		"target":         target,
	}).Debug("send client->relay")
	return tx, nil
}

func (c *Client) journalBegin(tx *Transaction) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Begin(context.Background(), tx.id, tx.action, tx.target); err != nil {
		c.logger.WithField("transaction_id", tx.id).Warnf("journal begin failed: %v", err)
	}
}

func (c *Client) journalAbort(tx *Transaction) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Settle(context.Background(), tx.id, protocol.StatusFailed, ""); err != nil {
		c.logger.WithField("transaction_id", tx.id).Warnf("journal settle failed: %v", err)
	}
}
