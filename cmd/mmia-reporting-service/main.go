// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// mmia-reporting-service generates and emails content reports and
// evening overviews.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/process"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/lib/service"
	"github.com/mmia-foundation/mmia/lib/version"
	"github.com/mmia-foundation/mmia/render"
	"github.com/mmia-foundation/mmia/services/host"
	"github.com/mmia-foundation/mmia/services/reporting"
)

const name = "mmia-reporting-service"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var common service.CommonFlags
	service.RegisterCommonFlags(pflag.CommandLine, &common)
	pflag.Parse()

	if common.ShowVersion {
		fmt.Printf("%s %s\n", name, version.Info())
		return nil
	}

	cfg, logger, err := service.Bootstrap(common, name)
	if err != nil {
		return err
	}
	definitions, err := render.ReadDefinitions(cfg.Reporting.TemplatesFile)
	if err != nil {
		return fmt.Errorf("loading report templates: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := host.New(cfg, logger, clock.Real())
	if err != nil {
		return err
	}
	defer h.Close()

	strategy := reporting.NewStrategy(h.API, h.Sender(), render.NewEngine(), definitions, cfg.Reporting.ViewContentURL, h.Clock)
	logger.Info("starting", "version", version.Info(), "templates", len(definitions))
	return h.Run(ctx, func(committer consumer.Committer) consumer.Handler {
		return consumer.NewPipeline[schema.ReportRequest](strategy, committer, h.PipelineConfig(), logger)
	})
}
