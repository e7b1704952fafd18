package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"OutcomeLedger/internal/report"
)

// ReportPublisher publishes persisted wallet reports to NATS for downstream
// consumers (dashboards, alerting). Publishing happens after the report is
// written; a publish failure is non-fatal because consumers can always read
// the report store directly.
type ReportPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan report.Report
	log       zerolog.Logger
}

func NewReportPublisher(js jetstream.JetStream, inputChan <-chan report.Report, log zerolog.Logger) *ReportPublisher {
	return &ReportPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run drains the report channel until the context is cancelled or the
// channel closes.
func (p *ReportPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rep, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, rep); err != nil {
				p.log.Warn().Err(err).Str("wallet", rep.Wallet).Msg("report publish failed")
			}
		}
	}
}

func (p *ReportPublisher) publish(ctx context.Context, rep report.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	subject := fmt.Sprintf("outcome.reports.%s.%s", rep.PolicyLabel(), rep.Wallet)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// EnsureReportStream creates the outbound report stream.
func EnsureReportStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "OUTCOME_REPORTS",
		Subjects:  []string{"outcome.reports.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create report stream: %w", err)
	}
	return nil
}
