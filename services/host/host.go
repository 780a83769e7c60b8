// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package host assembles the process around a consumer service: the
// data API client, the optional local store, outbound email, the
// broker consumer, the supervisor and its control socket.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/ches"
	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/contentref"
	"github.com/mmia-foundation/mmia/dataapi"
	"github.com/mmia-foundation/mmia/lib/blob"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/config"
	"github.com/mmia-foundation/mmia/lib/service"
	"github.com/mmia-foundation/mmia/services/delivery"
	"github.com/mmia-foundation/mmia/store"
	"github.com/mmia-foundation/mmia/workorder"
)

// Host owns the shared clients of one service process.
type Host struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock
	API    *dataapi.Client
	// Store is nil unless store.path is configured.
	Store *store.Store
}

// New connects the data API and opens the local store when one is
// configured.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*Host, error) {
	api, err := dataapi.NewClient(dataapi.Config{
		BaseURL: cfg.API.URL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout.Std(),
	})
	if err != nil {
		return nil, &consumer.ConfigError{Component: "data API", Err: err}
	}
	h := &Host{Config: cfg, Logger: logger, Clock: clk, API: api}

	if cfg.Store.Path != "" {
		compression, err := blob.ParseTag(cfg.Store.Compression)
		if err != nil {
			return nil, &consumer.ConfigError{Component: "store", Err: err}
		}
		h.Store, err = store.Open(store.Config{
			Path:        cfg.Store.Path,
			PoolSize:    cfg.Store.PoolSize,
			Compression: compression,
			Clock:       clk,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		logger.Info("local store opened", "path", cfg.Store.Path)
	}
	return h, nil
}

// Close releases the store.
func (h *Host) Close() {
	if h.Store == nil {
		return
	}
	if err := h.Store.Close(); err != nil {
		h.Logger.Error("closing store", "error", err)
	}
}

// References returns a content reference manager over the local store,
// or the data API when there is none.
func (h *Host) References() *contentref.Manager {
	var references contentref.Store = h.API
	if h.Store != nil {
		references = h.Store
	}
	return contentref.NewManager(references, h.Clock, h.Config.Service.StaleAfter.Std(), h.Logger)
}

// WorkOrders returns a work order tracker over the local store, or the
// data API when there is none.
func (h *Host) WorkOrders() *workorder.Tracker {
	var orders workorder.Store = h.API
	if h.Store != nil {
		orders = h.Store
	}
	return workorder.NewTracker(orders, h.Clock, h.Logger)
}

// Sender returns an email sender. Deliveries are archived in the local
// store when there is one.
func (h *Host) Sender() *delivery.Sender {
	mailer := ches.NewClient(ches.Config{
		URL:          h.Config.CHES.URL,
		AuthURL:      h.Config.CHES.AuthURL,
		ClientID:     h.Config.CHES.ClientID,
		ClientSecret: h.Config.CHES.ClientSecret,
		From:         h.Config.CHES.From,
		Timeout:      h.Config.CHES.Timeout.Std(),
		Enabled:      h.Config.CHES.EmailEnabled,
		OverrideTo:   h.Config.CHES.OverrideTo,
	}, h.Clock, h.Logger)

	var archive delivery.Archive
	if h.Store != nil {
		archive = h.Store
	}
	return delivery.NewSender(h.API, mailer, archive, h.Clock, h.Logger)
}

// Producer connects a publishing client to the brokers.
func (h *Host) Producer() (*broker.KafkaProducer, error) {
	return broker.NewKafkaProducer(h.Config.Kafka.Brokers, h.Config.Kafka.ClientID, h.Logger)
}

// PipelineConfig reads the pipeline mode from the service section.
func (h *Host) PipelineConfig() consumer.PipelineConfig {
	return consumer.PipelineConfig{Strict: h.Config.Service.AcceptOnlyWorkOrders}
}

// Run consumes the configured topics with the handler build returns
// and serves the control socket, until the supervisor stops or ctx
// ends. build receives the consumer so the handler can commit through
// it.
func (h *Host) Run(ctx context.Context, build func(committer consumer.Committer) consumer.Handler) error {
	cfg := h.Config
	kafka := broker.NewKafka(broker.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		ClientID:       cfg.Kafka.ClientID,
		SessionTimeout: cfg.Kafka.SessionTimeout.Std(),
		OffsetReset:    cfg.Kafka.OffsetReset,
		Logger:         h.Logger,
	})

	supervisor := consumer.NewSupervisor(consumer.SupervisorConfig{
		Topics:       cfg.Service.TopicList(),
		Delay:        cfg.Service.DefaultDelay.Std(),
		MaxFailLimit: cfg.Service.MaxFailLimit,
		RetryLimit:   cfg.Service.RetryLimit,
		RetryDelay:   cfg.Service.RetryDelay.Std(),
	}, kafka, build(kafka), h.Clock, h.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := service.NewSocketServer(cfg.Service.SocketPath, h.Logger)
	consumer.RegisterControl(server, cfg.Service.Name, supervisor)
	socketDone := make(chan error, 1)
	go func() { socketDone <- server.Serve(ctx) }()

	h.Logger.Info("service running",
		"topics", cfg.Service.TopicList(),
		"socket", cfg.Service.SocketPath,
		"strict", cfg.Service.AcceptOnlyWorkOrders,
	)
	runErr := supervisor.Run(ctx)
	cancel()
	socketErr := <-socketDone

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, socketErr)
}
