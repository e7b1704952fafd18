package ingestion_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"OutcomeLedger/internal/event"
	"OutcomeLedger/internal/ingestion"
	"OutcomeLedger/internal/warehouse"
)

type recordingAppender struct {
	events      []event.Raw
	resolutions []warehouse.ResolutionRow
	marks       []warehouse.MarkRow
	failAppends int
}

func (a *recordingAppender) AppendEvents(_ context.Context, rows []event.Raw) error {
	if a.failAppends > 0 {
		a.failAppends--
		return errors.New("warehouse unavailable")
	}
	a.events = append(a.events, rows...)
	return nil
}

func (a *recordingAppender) AppendResolutions(_ context.Context, rows []warehouse.ResolutionRow) error {
	a.resolutions = append(a.resolutions, rows...)
	return nil
}

func (a *recordingAppender) AppendMarks(_ context.Context, rows []warehouse.MarkRow) error {
	a.marks = append(a.marks, rows...)
	return nil
}

type ackState struct {
	acked int
	naked int
}

func feedMsg(t *testing.T, subject string, payload map[string]interface{}, st *ackState) ingestion.RawMessage {
	t.Helper()
	return ingestion.RawMessage{
		Subject: subject,
		Data:    payloadBytes(t, payload),
		AckFunc: func() { st.acked++ },
		NakFunc: func() { st.naked++ },
	}
}

func runConsumer(t *testing.T, appender *recordingAppender, dedup *ingestion.Dedup, msgs ...ingestion.RawMessage) {
	t.Helper()
	ch := make(chan ingestion.RawMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)

	c := ingestion.NewConsumer(ch, appender, dedup, nil, zerolog.Nop())
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func fillPayload(eventID string) map[string]interface{} {
	return map[string]interface{}{
		"event_id": eventID, "wallet": "0xw1", "token_id": "tok1",
		"side": "buy", "quantity": "5", "price": "0.40", "role": "taker",
		"timestamp_us": int64(1700000000000000),
	}
}

func TestConsumerAppendsAndAcks(t *testing.T) {
	appender := &recordingAppender{}
	var st ackState

	runConsumer(t, appender, ingestion.NewDedup(16, nil),
		feedMsg(t, "outcome.fills.0xmkt1", fillPayload("e1"), &st),
		feedMsg(t, "outcome.marks.0xmkt1", map[string]interface{}{
			"market": "0xmkt1", "outcome": 0, "price": "0.61",
		}, &st),
		feedMsg(t, "outcome.resolutions.0xmkt1", map[string]interface{}{
			"market": "0xmkt1", "payouts": []string{"1", "0"},
		}, &st),
	)

	if len(appender.events) != 1 || appender.events[0].EventID != "e1" {
		t.Errorf("events: got %+v", appender.events)
	}
	if appender.events[0].IngestedAt.IsZero() {
		t.Error("ingested_at not stamped")
	}
	if len(appender.marks) != 1 || len(appender.resolutions) != 2 {
		t.Errorf("marks=%d resolutions=%d", len(appender.marks), len(appender.resolutions))
	}
	if st.acked != 3 || st.naked != 0 {
		t.Errorf("acked=%d naked=%d", st.acked, st.naked)
	}
}

func TestConsumerSkipsDuplicateDelivery(t *testing.T) {
	appender := &recordingAppender{}
	var st ackState
	dedup := ingestion.NewDedup(16, nil)

	runConsumer(t, appender, dedup,
		feedMsg(t, "outcome.fills.0xmkt1", fillPayload("e1"), &st),
		feedMsg(t, "outcome.fills.0xmkt1", fillPayload("e1"), &st),
	)

	if len(appender.events) != 1 {
		t.Errorf("events: got %d, want 1", len(appender.events))
	}
	// The duplicate is still acked; it was handled, just not stored twice.
	if st.acked != 2 {
		t.Errorf("acked=%d, want 2", st.acked)
	}
}

func TestConsumerDistinguishesFillLegs(t *testing.T) {
	appender := &recordingAppender{}
	var st ackState

	maker := fillPayload("e1")
	maker["role"] = "maker"
	taker := fillPayload("e1")

	runConsumer(t, appender, ingestion.NewDedup(16, nil),
		feedMsg(t, "outcome.fills.0xmkt1", maker, &st),
		feedMsg(t, "outcome.fills.0xmkt1", taker, &st),
	)

	if len(appender.events) != 2 {
		t.Errorf("events: got %d, want 2 (one per fill leg)", len(appender.events))
	}
}

func TestConsumerNaksFailedAppend(t *testing.T) {
	appender := &recordingAppender{failAppends: 1}
	var st ackState

	runConsumer(t, appender, ingestion.NewDedup(16, nil),
		feedMsg(t, "outcome.fills.0xmkt1", fillPayload("e1"), &st),
	)

	if st.naked != 1 || st.acked != 0 {
		t.Errorf("acked=%d naked=%d, want nak only", st.acked, st.naked)
	}
	if len(appender.events) != 0 {
		t.Errorf("events: got %d, want 0", len(appender.events))
	}
}

func TestConsumerAcksMalformedWithoutAppend(t *testing.T) {
	appender := &recordingAppender{}
	var st ackState

	bad := fillPayload("e1")
	bad["side"] = "hold"

	runConsumer(t, appender, ingestion.NewDedup(16, nil),
		feedMsg(t, "outcome.fills.0xmkt1", bad, &st),
	)

	if st.acked != 1 || st.naked != 0 {
		t.Errorf("acked=%d naked=%d, want ack only", st.acked, st.naked)
	}
	if len(appender.events) != 0 {
		t.Errorf("events: got %d, want 0", len(appender.events))
	}
}

type mapChecker struct {
	stored map[string]bool
	calls  int
}

func (m *mapChecker) IsStored(category, eventID string) (bool, error) {
	m.calls++
	return m.stored[category+":"+eventID], nil
}

func TestDedupTwoTier(t *testing.T) {
	checker := &mapChecker{stored: map[string]bool{"fill:e9": true}}
	dedup := ingestion.NewDedup(2, checker)

	if !dedup.Seen("fill", "e9") {
		t.Error("cold-path hit missed")
	}
	// Second lookup must come from the LRU.
	calls := checker.calls
	if !dedup.Seen("fill", "e9") {
		t.Error("hot-path hit missed")
	}
	if checker.calls != calls {
		t.Errorf("expected no extra cold-path call, got %d", checker.calls-calls)
	}

	if dedup.Seen("fill", "e1") {
		t.Error("unseen key reported as seen")
	}
	dedup.Mark("fill", "e1")
	if !dedup.Seen("fill", "e1") {
		t.Error("marked key not seen")
	}
}

func TestDedupEvictsOldest(t *testing.T) {
	dedup := ingestion.NewDedup(2, nil)
	dedup.Mark("fill", "e1")
	dedup.Mark("fill", "e2")
	dedup.Mark("fill", "e3")

	if dedup.Size() != 2 {
		t.Errorf("size: got %d, want 2", dedup.Size())
	}
	if dedup.Seen("fill", "e1") {
		t.Error("oldest key not evicted")
	}
	if !dedup.Seen("fill", "e3") {
		t.Error("newest key missing")
	}
}

func TestDedupWarm(t *testing.T) {
	dedup := ingestion.NewDedup(16, nil)
	dedup.Warm("fill", []string{"e1", "e2"})
	if !dedup.Seen("fill", "e1") || !dedup.Seen("fill", "e2") {
		t.Error("warmed keys not seen")
	}
}
