package main

import (
	"context"
	"fmt"
	"io"

	"github.com/HsiangNianian/AMonItor/sdk/client"
	"github.com/HsiangNianian/AMonItor/sdk/internal/config"
	"github.com/HsiangNianian/AMonItor/sdk/internal/store"
	"github.com/HsiangNianian/AMonItor/sdk/protocol"
	"github.com/sirupsen/logrus"
)

type app struct {
	configPath string
	url        string
	raw        bool

	cfg     config.Config
	logger  *logrus.Logger
	journal store.Store
}

func newApp() *app {
	return &app{logger: logrus.New()}
}

// setup loads configuration and builds the logger and journal. A journal
// already set (tests) is kept.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.url != "" {
		cfg.Server.URL = a.url
	}
	a.cfg = cfg

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level failed: %w", err)
	}
	a.logger.SetLevel(level)

	if a.journal != nil {
		return nil
	}
	if cfg.Journal.RedisAddr != "" {
		a.journal = store.NewRedisStore(cfg.Journal.RedisAddr, cfg.Journal.TTL())
		a.logger.Debugf("use redis journal: %s", cfg.Journal.RedisAddr)
	} else {
		a.journal = store.NewMemoryStore(cfg.Journal.TTL())
		a.logger.Debug("use memory journal")
	}
	return nil
}

func (a *app) connect(ctx context.Context) (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(a.logger),
		client.WithJournal(a.journal),
		client.WithHandshakeTimeout(a.cfg.Server.HandshakeTimeout()),
		client.WithErrorHandler(func(err error) {
			a.logger.WithError(err).Warn("relay dispatch error")
		}),
	}
	if a.cfg.TLS.Enabled {
		opts = append(opts, client.WithSecurity(client.Security{
			CAFile:         a.cfg.TLS.CAFile,
			CertFile:       a.cfg.TLS.CertFile,
			KeyFile:        a.cfg.TLS.KeyFile,
			Passphrase:     a.cfg.TLS.Passphrase,
			VerifyHostname: a.cfg.TLS.VerifyHostname,
		}))
	}
	return client.Connect(ctx, a.cfg.Server.URL, opts...)
}

// await waits for the ack within the configured ack timeout.
func (a *app) await(ctx context.Context, tx *client.Transaction) (*protocol.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.AckTimeout())
	defer cancel()
	return tx.Await(ctx)
}

// close releases the journal; the redis journal holds a connection pool.
func (a *app) close() {
	c, ok := a.journal.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		a.logger.Warnf("close journal failed: %v", err)
	}
}
