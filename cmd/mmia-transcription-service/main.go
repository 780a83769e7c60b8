// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// mmia-transcription-service transcribes audio and video content with
// a speech-to-text service and writes the transcript into the content
// body.
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
	"github.com/mmia-foundation/mmia/services/host"
	"github.com/mmia-foundation/mmia/services/transcription"
	"github.com/mmia-foundation/mmia/transcriber"
)

const name = "mmia-transcription-service"

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
	speech, err := transcriber.NewSpeechClient(transcriber.SpeechConfig{
		URL:     cfg.Transcription.SpeechURL,
		Key:     cfg.Transcription.SpeechKey,
		Region:  cfg.Transcription.Region,
		Timeout: cfg.Transcription.Timeout.Std(),
	})
	if err != nil {
		return &consumer.ConfigError{Component: "speech", Err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := host.New(cfg, logger, clock.Real())
	if err != nil {
		return err
	}
	defer h.Close()

	strategy := transcription.NewStrategy(
		h.API,
		h.WorkOrders(),
		speech,
		transcriber.NewFFmpeg(cfg.Transcription.FFmpegPath, logger),
		transcription.Config{
			VolumePath: cfg.Transcription.VolumePath,
			Language:   cfg.Transcription.Language,
		},
	)
	logger.Info("starting", "version", version.Info(), "volume", cfg.Transcription.VolumePath)
	return h.Run(ctx, func(committer consumer.Committer) consumer.Handler {
		return consumer.NewPipeline[schema.TranscriptRequest](strategy, committer, h.PipelineConfig(), logger)
	})
}
