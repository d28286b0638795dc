package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/baseline"
	"github.com/evcraddock/proptech-copilot/internal/config"
	"github.com/evcraddock/proptech-copilot/internal/events"
	"github.com/evcraddock/proptech-copilot/internal/metrics"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// stack is a scenario service and everything it holds open.
type stack struct {
	svc     *scenario.Service
	metrics *metrics.Metrics
	closers []func() error
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: shutting down: %v\n", err)
		}
	}
}

// buildStack opens the database, loads the baseline and wires the scenario
// service. Kafka publishing is enabled when brokers are configured.
func buildStack(cfg *config.Config, m *metrics.Metrics) (*stack, error) {
	base, err := baseline.Load(cfg.BaselinePath)
	if err != nil {
		return nil, err
	}

	database, err := openDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	st := &stack{metrics: m, closers: []func() error{database.Close}}

	ledgerOpts := []audit.Option{audit.WithTimeout(cfg.StorageTimeout)}
	if cfg.EventsEnabled() {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, m)
		st.closers = append(st.closers, pub.Close)
		ledgerOpts = append(ledgerOpts, audit.WithPublisher(pub))
		slog.Info("publishing audit entries", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	ledger := audit.NewLedger(database, ledgerOpts...)
	overlays := overlay.NewStore(database, ledger, overlay.WithTimeout(cfg.StorageTimeout))
	st.svc = scenario.NewService(base, overlays, ledger,
		scenario.WithMetrics(m),
		scenario.WithGridFactor(cfg.GridFactor),
	)

	slog.Info("baseline loaded", "path", cfg.BaselinePath, "properties", base.Len())
	return st, nil
}
