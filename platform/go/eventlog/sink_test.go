package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

type blockingWriter struct {
	release chan struct{}
	inner   *MemoryWriter
}

func (w *blockingWriter) WriteEvent(ctx context.Context, e Event) error {
	<-w.release
	return w.inner.WriteEvent(ctx, e)
}

func TestValidateRejectsForeignTypes(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	require.NoError(t, Audit(companyID, AuditPlanChanged, SeverityInfo, nil, nil, nil).Validate())
	require.NoError(t, Security(companyID, SecurityCompanyFrozen, SeverityHigh, nil).Validate())
	require.NoError(t, Billing(companyID, BillingTrialExpired, nil, nil, nil).Validate())

	testCases := []Event{
		Billing(companyID, AuditPlanChanged, nil, nil, nil),
		Security(companyID, BillingTrialExpired, SeverityLow, nil),
		Audit(companyID, AuditCompanyFrozen, SeverityHigh, nil, nil, nil),
		Security(companyID, SecurityCompanyFrozen, SeverityWarn, nil),
		{Family: "metrics", Type: "x"},
	}
	for _, e := range testCases {
		require.ErrorIs(t, e.Validate(), ErrInvalidEvent, "%s/%s", e.Family, e.Type)
	}

	withSeverity := Billing(companyID, BillingCompanyFrozen, nil, nil, nil)
	withSeverity.Severity = SeverityInfo
	require.ErrorIs(t, withSeverity.Validate(), ErrInvalidEvent)
}

func TestSinkWritesAndStampsActor(t *testing.T) {
	t.Parallel()

	writer := NewMemoryWriter()
	sink := NewSink(writer, zaptest.NewLogger(t), Config{BufferSize: 8})

	userID := "user-1"
	ctx := requesttrace.IntoContext(context.Background(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &userID,
		RequestID: "req-1",
	})

	companyID := uuid.New()
	require.NoError(t, sink.Emit(ctx, Billing(companyID, BillingSubscriptionCreated, nil, map[string]any{"plan": "pro"}, nil)))
	require.NoError(t, sink.Flush(context.Background()))

	events := writer.ForCompany(companyID)
	require.Len(t, events, 1)
	require.NotEqual(t, uuid.Nil, events[0].ID)
	require.False(t, events[0].OccurredAt.IsZero())
	require.Equal(t, "user", events[0].ActorKind)
	require.Equal(t, "user-1", *events[0].ActorID)
	require.Equal(t, "req-1", events[0].RequestID)

	require.NoError(t, sink.Drain(context.Background()))
	require.Equal(t, Stats{Accepted: 1, Written: 1}, sink.Stats())
}

func TestSinkEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	writer := &blockingWriter{release: make(chan struct{}), inner: NewMemoryWriter()}
	sink := NewSink(writer, zaptest.NewLogger(t), Config{BufferSize: 2})

	companyID := uuid.New()
	var full int
	for i := 0; i < 10; i++ {
		err := sink.Emit(context.Background(), Billing(companyID, BillingCompanyFrozen, nil, nil, nil))
		if errors.Is(err, ErrBufferFull) {
			full++
			continue
		}
		require.NoError(t, err)
	}
	require.Positive(t, full)

	close(writer.release)
	require.NoError(t, sink.Drain(context.Background()))

	stats := sink.Stats()
	require.Equal(t, uint64(full), stats.Dropped)
	require.Equal(t, stats.Accepted, stats.Written)
	require.Len(t, writer.inner.Events(), int(stats.Written))
}

func TestSinkCountsWriteFailures(t *testing.T) {
	t.Parallel()

	writer := NewMemoryWriter()
	writer.Fail = func(e Event) error {
		if e.Family == FamilySecurity {
			return errors.New("table unavailable")
		}
		return nil
	}
	sink := NewSink(writer, zaptest.NewLogger(t), Config{})

	companyID := uuid.New()
	require.NoError(t, sink.Emit(context.Background(), Security(companyID, SecurityCompanyFrozen, SeverityHigh, nil)))
	require.NoError(t, sink.Emit(context.Background(), Audit(companyID, AuditCompanyFrozen, SeverityWarn, nil, nil, nil)))
	require.NoError(t, sink.Drain(context.Background()))

	require.Equal(t, uint64(1), sink.Stats().Failed)
	require.Len(t, writer.Events(FamilyAudit), 1)
	require.Empty(t, writer.Events(FamilySecurity))
}

func TestSinkRejectsAfterDrain(t *testing.T) {
	t.Parallel()

	sink := NewSink(NewMemoryWriter(), zaptest.NewLogger(t), Config{})
	require.NoError(t, sink.Drain(context.Background()))

	err := sink.Emit(context.Background(), Billing(uuid.New(), BillingTrialExpired, nil, nil, nil))
	require.ErrorIs(t, err, ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sink.Flush(ctx))
}

func TestSinkRejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := NewSink(NewMemoryWriter(), zaptest.NewLogger(t), Config{})
	defer func() { _ = sink.Drain(context.Background()) }()

	err := sink.Emit(context.Background(), Event{Family: FamilyBilling, Type: "freeze"})
	require.ErrorIs(t, err, ErrInvalidEvent)
	require.Zero(t, sink.Stats().Accepted)
}
