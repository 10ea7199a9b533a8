package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/audit"
	"github.com/viant/fluxgate/service/audit/memory"
	qmem "github.com/viant/fluxgate/service/messaging/memory"
)

func decision(id, runID string, kind model.DecisionKind) *model.Decision {
	ret := &model.Decision{
		ID:        id,
		RunID:     runID,
		StepID:    "s1",
		Kind:      kind,
		Actor:     "alice",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if kind == model.DecisionReject {
		ret.Reason = "wrong target"
	}
	return ret
}

func TestValidate(t *testing.T) {
	type testCase struct {
		name      string
		decision  *model.Decision
		expectErr bool
	}
	noReason := decision("d2", "r1", model.DecisionReject)
	noReason.Reason = "  "
	noActor := decision("d3", "r1", model.DecisionApprove)
	noActor.Actor = ""
	testCases := []testCase{
		{name: "approve", decision: decision("d1", "r1", model.DecisionApprove)},
		{name: "timeout", decision: decision("d1", "r1", model.DecisionTimeout)},
		{name: "reject without reason", decision: noReason, expectErr: true},
		{name: "missing actor", decision: noActor, expectErr: true},
		{name: "unknown kind", decision: decision("d4", "r1", "escalate"), expectErr: true},
		{name: "nil", expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := audit.Validate(tc.decision)
			if tc.expectErr {
				assert.ErrorIs(t, err, audit.ErrInvalidDecision)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChain(t *testing.T) {
	var entries []*audit.Entry
	for _, id := range []string{"d1", "d2", "d3"} {
		entry, err := audit.Chain(entries, decision(id, "r1", model.DecisionApprove))
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	assert.Equal(t, int64(3), entries[2].Sequence)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)
	require.NoError(t, audit.Verify(entries))

	again, err := audit.Hash("", decision("d1", "r1", model.DecisionApprove))
	require.NoError(t, err)
	assert.Equal(t, entries[0].Hash, again)

	entries[1].Decision.Actor = "mallory"
	assert.ErrorContains(t, audit.Verify(entries), "entry 2")
}

func TestMemorySink(t *testing.T) {
	ctx := context.Background()
	sink := memory.New()
	require.NoError(t, sink.Append(ctx, decision("d1", "r1", model.DecisionApprove)))
	require.NoError(t, sink.Append(ctx, decision("d2", "r2", model.DecisionReject)))
	require.NoError(t, sink.Append(ctx, decision("d1", "r1", model.DecisionApprove)))
	assert.Error(t, sink.Append(ctx, &model.Decision{ID: "bad"}))

	all, err := sink.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	run, err := sink.List(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, run, 1)
	assert.Equal(t, model.DecisionReject, run[0].Kind)

	run[0].Actor = "mallory"
	require.NoError(t, sink.Verify())
	assert.Len(t, sink.Entries(), 2)
}

type flakySink struct {
	failures int
	appended []*model.Decision
}

func (f *flakySink) Append(_ context.Context, d *model.Decision) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("downstream unavailable")
	}
	f.appended = append(f.appended, d.Clone())
	return nil
}

func (f *flakySink) List(context.Context, string) ([]*model.Decision, error) {
	return f.appended, nil
}

func TestOutboxForwarder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	config := qmem.DefaultConfig()
	config.RetryDelay = time.Millisecond
	queue := qmem.NewQueue[model.Decision](config)
	primary := memory.New()
	outbox := audit.NewOutbox(primary, queue, nil)
	downstream := &flakySink{failures: 1}
	forwarder := audit.NewForwarder(queue, downstream, nil)

	require.NoError(t, outbox.Append(ctx, decision("d1", "r1", model.DecisionApprove)))
	listed, err := outbox.List(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	delivered, err := forwarder.Forward(ctx)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Empty(t, downstream.appended)

	delivered, err = forwarder.Forward(ctx)
	require.NoError(t, err)
	assert.True(t, delivered)
	require.Len(t, downstream.appended, 1)
	assert.Equal(t, "d1", downstream.appended[0].ID)

	assert.Error(t, outbox.Append(ctx, &model.Decision{ID: "bad"}))
	assert.Equal(t, 0, queue.Size())
}
