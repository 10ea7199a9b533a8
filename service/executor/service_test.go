package executor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/fluxgate/model"
)

func TestService_Execute(t *testing.T) {
	type testCase struct {
		description string
		delegate    Service
		step        *model.Step
		expectErr   error
		expectCalls int
	}
	op := &model.Operation{Kind: "device.reboot", Target: "edge-1"}
	var testCases = []testCase{
		{
			description: "success",
			delegate:    Func(func(ctx context.Context, run *model.Run, step *model.Step) error { return nil }),
			step:        model.NewStep("s1", 1, model.ModeAlwaysAuto, op),
			expectCalls: 1,
		},
		{
			description: "failure",
			delegate:    NewSimulator(0, "s1"),
			step:        model.NewStep("s1", 1, model.ModeAlwaysAuto, op),
			expectErr:   ErrSimulatedFailed,
			expectCalls: 1,
		},
		{
			description: "panic",
			delegate:    Func(func(ctx context.Context, run *model.Run, step *model.Step) error { panic("boom") }),
			step:        model.NewStep("s1", 1, model.ModeAlwaysAuto, op),
			expectErr:   ErrExecutorPanic,
			expectCalls: 1,
		},
		{
			description: "no operation",
			delegate:    NewSimulator(0),
			step:        model.NewStep("s1", 1, model.ModeAlwaysAuto, nil),
			expectErr:   ErrNoOperation,
		},
	}
	for _, testCase := range testCases {
		calls := 0
		var observed error
		srv := NewService(testCase.delegate, WithListener(func(run *model.Run, step *model.Step, err error) {
			calls++
			observed = err
		}))
		err := srv.Execute(context.Background(), &model.Run{ID: "run-1"}, testCase.step)
		if testCase.expectErr != nil {
			assert.True(t, errors.Is(err, testCase.expectErr), testCase.description)
		} else {
			assert.NoError(t, err, testCase.description)
		}
		assert.Equal(t, testCase.expectCalls, calls, testCase.description)
		if calls > 0 {
			assert.Equal(t, err, observed, testCase.description)
		}
	}
}

func TestSimulator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSimulator(time.Hour).Execute(ctx, &model.Run{ID: "run-1"}, model.NewStep("s1", 1, model.ModeAlwaysAuto, &model.Operation{Kind: "x"}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriterListener(t *testing.T) {
	buffer := &bytes.Buffer{}
	listener := WriterListener(buffer)
	step := model.NewStep("s1", 1, model.ModeAlwaysAuto, &model.Operation{Kind: "device.reboot"})
	listener(&model.Run{ID: "run-1"}, step, nil)
	listener(&model.Run{ID: "run-1"}, step, errors.New("boom"))
	listener(nil, nil, nil)
	assert.Equal(t, `{"kind":"device.reboot","ok":true,"runId":"run-1","stepId":"s1"}
{"error":"boom","kind":"device.reboot","ok":false,"runId":"run-1","stepId":"s1"}
`, buffer.String())
}
