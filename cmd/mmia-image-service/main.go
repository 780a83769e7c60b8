// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// mmia-image-service copies newspaper front pages from remote SFTP
// drops into the shared volume. It scans each drop on a schedule and
// consumes the resulting requests, so several replicas can share the
// work.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/config"
	"github.com/mmia-foundation/mmia/lib/cron"
	"github.com/mmia-foundation/mmia/lib/process"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/lib/service"
	"github.com/mmia-foundation/mmia/lib/version"
	"github.com/mmia-foundation/mmia/remotefile"
	"github.com/mmia-foundation/mmia/services/host"
	"github.com/mmia-foundation/mmia/services/image"
)

const name = "mmia-image-service"

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		common  service.CommonFlags
		noScan  bool
		scanNow bool
	)
	service.RegisterCommonFlags(pflag.CommandLine, &common)
	pflag.BoolVar(&noScan, "no-scan", false, "consume image requests without scanning the sources")
	pflag.BoolVar(&scanNow, "scan-now", false, "scan every source once at startup")
	pflag.Parse()

	if common.ShowVersion {
		fmt.Printf("%s %s\n", name, version.Info())
		return nil
	}

	cfg, logger, err := service.Bootstrap(common, name)
	if err != nil {
		return err
	}
	imageConfig := cfg.Image
	location, err := time.LoadLocation(imageConfig.TimeZone)
	if err != nil {
		return &consumer.ConfigError{Component: "image", Err: err}
	}
	schedule, err := cron.Parse(imageConfig.ScanSchedule)
	if err != nil {
		return &consumer.ConfigError{Component: "image", Err: err}
	}
	if imageConfig.OutputTopic == "" || imageConfig.RequestTopic == "" {
		return &consumer.ConfigError{Component: "image", Err: fmt.Errorf("image.output_topic and image.request_topic are required")}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := host.New(cfg, logger, clock.Real())
	if err != nil {
		return err
	}
	defer h.Close()

	producer, err := h.Producer()
	if err != nil {
		return err
	}
	defer producer.Close()

	sources := image.NewSources(imageSources(imageConfig.Sources), image.DialSFTP, logger)
	defer sources.Close()

	if !noScan {
		scanner := image.NewScanner(sources, producer, imageConfig.RequestTopic, schedule, location, h.Clock, logger)
		if scanNow {
			if requested, err := scanner.Scan(ctx); err != nil {
				logger.Warn("startup scan incomplete", "requested", requested, "error", err)
			}
		}
		go func() {
			if err := scanner.Run(ctx); err != nil {
				logger.Error("scanner stopped", "error", err)
			}
		}()
	}

	strategy := image.NewStrategy(h.References(), sources, producer, image.Config{
		VolumePath:  imageConfig.VolumePath,
		OutputTopic: imageConfig.OutputTopic,
		Location:    location,
	})
	logger.Info("starting", "version", version.Info(), "sources", len(imageConfig.Sources), "scan", !noScan)
	return h.Run(ctx, func(committer consumer.Committer) consumer.Handler {
		return consumer.NewPipeline[schema.ImageRequest](strategy, committer, h.PipelineConfig(), logger)
	})
}

func imageSources(configured []config.ImageSourceConfig) []image.Source {
	sources := make([]image.Source, 0, len(configured))
	for _, source := range configured {
		sources = append(sources, image.Source{
			Code: source.Code,
			Connection: remotefile.Config{
				Host:           source.Host,
				Port:           source.Port,
				Username:       source.Username,
				Password:       source.Password,
				KeyFile:        source.KeyFile,
				KnownHostsFile: source.KnownHostsFile,
				Timeout:        30 * time.Second,
			},
			Path:        source.Path,
			PathLayout:  source.PathLayout,
			FilePattern: source.FilePattern,
			ProductID:   int64(source.ProductID),
		})
	}
	return sources
}
