package client

import (
	"context"
	"fmt"

	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/sirupsen/logrus"
)

// dispatch routes one inbound envelope. Only an ack removes registry
// state, and only its own pending transaction.
func (c *Client) dispatch(env *protocol.Envelope) {
	c.logger.WithFields(logrus.Fields{
		"action":         env.Action,
		"transaction_id": env.TransactionID,
		"status":         env.Status,
		"message":        env.Message,
	}).Debug("recv relay->client")

	switch env.Action {
	case protocol.ActionAck:
		if tx := c.transactions.take(env.TransactionID); tx != nil {
			c.settle(tx, env)
		}
		c.invokeHandler(protocol.ActionAck, env)

	case protocol.ActionBroadcast, protocol.ActionSend:
		c.invokeHandler(env.Action, env)

	case protocol.ActionPublish:
		c.invokeHandler(protocol.ActionPublish, env)

		params, err := env.PublishParams()
		if err != nil {
			c.report(err)
			return
		}
		if h, ok := c.channels.get(params.Channel); ok {
			c.invoke("channel "+params.Channel, h, env)
		}

	default:
		c.logger.WithField("action", env.Action).Debug("drop envelope with no route")
	}
}

// settle records the outcome, then releases waiters. tx has already been
// taken from the registry, so this runs once per transaction.
func (c *Client) settle(tx *Transaction, env *protocol.Envelope) {
	if c.journal != nil {
		if err := c.journal.Settle(context.Background(), tx.id, env.Status, env.Message); err != nil {
			c.logger.WithField("transaction_id", tx.id).Warnf("journal settle failed: %v", err)
		}
	}
	tx.settle(env)
}

func (c *Client) invokeHandler(action protocol.Action, env *protocol.Envelope) {
	if h, ok := c.handlers.get(action); ok {
		c.invoke(string(action)+" handler", h, env)
	}
}

// invoke runs a caller callback so that a panic in it cannot stop the
// callbacks that follow it or the reader goroutine.
func (c *Client) invoke(name string, h Handler, env *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.report(fmt.Errorf("%w: %s: %v", ErrCallbackPanic, name, r))
		}
	}()
	h(env)
}
