// Command localcall talks to the voice tutor through this machine's
// microphone and speaker. Ctrl-C ends the call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/satriahrh/englichat/adapters/llm"
	"github.com/satriahrh/englichat/adapters/localaudio"
	"github.com/satriahrh/englichat/domain/entities"
	"github.com/satriahrh/englichat/domain/repositories"
	"github.com/satriahrh/englichat/internal/config"
	"github.com/satriahrh/englichat/internal/logging"
	"github.com/satriahrh/englichat/internal/metrics"
	"github.com/satriahrh/englichat/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cfg.Logging.Format = "console"
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := localaudio.NewDevice(logger)
	if err != nil {
		logger.Fatal("Failed to open audio devices", zap.Error(err))
	}
	defer device.Close()

	var live repositories.LiveModel
	if cfg.Mock {
		live = llm.NewMockGeminiLive()
	} else {
		client, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			logger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
		live = llm.NewGeminiLive(client, logger, cfg.Voice.SendQueueSize)
	}

	printer := newTranscriptPrinter()
	controller := voice.NewController(device, live, cfg.Voice.SessionConfig(), logger,
		metrics.NewMetrics(prometheus.NewRegistry()),
		voice.WithObserver(printer.observe))

	if err := controller.Start(ctx); err != nil {
		logger.Error("Voice session did not start", zap.Error(err))
		controller.Stop()
		os.Exit(1)
	}

	<-ctx.Done()

	if err := controller.Stop(); err != nil {
		logger.Warn("Voice session stopped with errors", zap.Error(err))
	}
}

// transcriptPrinter prints each entry once it is final. It runs under the
// controller lock, so it only writes to stdout.
type transcriptPrinter struct {
	printed map[string]bool
	status  entities.SessionStatus
}

func newTranscriptPrinter() *transcriptPrinter {
	return &transcriptPrinter{printed: make(map[string]bool)}
}

func (p *transcriptPrinter) observe(snapshot voice.Snapshot) {
	if snapshot.Status != p.status {
		p.status = snapshot.Status
		fmt.Printf("[%s]\n", p.status)
	}
	for _, entry := range snapshot.Transcripts {
		if !entry.IsFinal || p.printed[entry.ID] {
			continue
		}
		p.printed[entry.ID] = true
		fmt.Printf("%-10s %s\n", string(entry.Sender)+":", entry.Text)
	}
}
