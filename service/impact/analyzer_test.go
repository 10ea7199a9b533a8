package impact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/fluxgate/model"
)

func TestAnalyzer_Analyze(t *testing.T) {
	type testCase struct {
		name          string
		op            *model.Operation
		expectLevel   model.ImpactLevel
		expectChecks  []string
		expectTyped   bool
		expectText    string
		unclassified  bool
		expectWarning string
	}

	testCases := []testCase{
		{
			name:         "plain field update is low",
			op:           &model.Operation{Kind: "device.update", Target: "phone-7", Changes: []*model.FieldChange{{Field: "label", Before: "a", After: "b"}}},
			expectLevel:  model.ImpactLow,
			expectChecks: []string{},
		},
		{
			name:          "sensitive field raises to medium",
			op:            &model.Operation{Kind: "device.update", Target: "phone-7", Changes: []*model.FieldChange{{Field: "sip_password", Before: "x", After: "y"}}},
			expectLevel:   model.ImpactMedium,
			expectChecks:  []string{"I have reviewed every field change on device phone-7"},
			expectWarning: `Field "sip_password" is security or routing sensitive`,
		},
		{
			name:         "record delete is high",
			op:           &model.Operation{Kind: "record.delete", Target: "prod-db"},
			expectLevel:  model.ImpactHigh,
			expectChecks: []string{"A backup of prod-db exists"},
		},
		{
			name:         "terminate is critical and typed",
			op:           &model.Operation{Kind: "compute.terminate", Target: "vm-1"},
			expectLevel:  model.ImpactCritical,
			expectChecks: []string{"Data on vm-1 has been backed up"},
			expectTyped:  true,
			expectText:   "TERMINATE-VM-1",
		},
		{
			name: "payment above critical threshold",
			op: &model.Operation{Kind: "payment.charge", Target: "acct 9", Transaction: &model.Transaction{Currency: "USD", Items: []*model.LineItem{
				{Description: "licences", Amount: 900_000},
				{Description: "support", Amount: 100_000},
			}}},
			expectLevel:  model.ImpactCritical,
			expectChecks: []string{"The charge total of USD 1000000 is correct"},
			expectTyped:  true,
			expectText:   "CHARGE-ACCT-9",
		},
		{
			name: "small payment is medium",
			op: &model.Operation{Kind: "payment.charge", Transaction: &model.Transaction{Currency: "EUR", Items: []*model.LineItem{
				{Description: "seat", Amount: 1_500},
			}}},
			expectLevel:  model.ImpactMedium,
			expectChecks: []string{"The charge total of EUR 1500 is correct"},
		},
		{
			name:         "audit only raises to high",
			op:           &model.Operation{Kind: "record.create", Target: "contact", Record: map[string]interface{}{"name": "Ann"}, Flags: []string{FlagAuditOnly}},
			expectLevel:  model.ImpactHigh,
			expectChecks: []string{},
		},
		{
			name:         "unknown kind fails closed",
			op:           &model.Operation{Kind: "satellite.launch", Target: "sat-1"},
			expectLevel:  model.ImpactCritical,
			expectChecks: []string{UnrecognizedCheck},
			expectTyped:  true,
			expectText:   "LAUNCH-SAT-1",
			unclassified: true,
		},
		{
			name:         "production environment adds check and typed confirmation",
			op:           &model.Operation{Kind: "record.delete", Target: "prod-db", Environment: "Production"},
			expectLevel:  model.ImpactHigh,
			expectChecks: []string{"A backup of prod-db exists", "Change to production environment Production is authorised"},
			expectTyped:  true,
			expectText:   "DELETE-PROD-DB",
		},
	}

	analyzer := New(WithProductionEnvironments("production"))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := analyzer.Analyze(context.Background(), tc.op)
			require.NotNil(t, actual)
			assert.Equal(t, tc.expectLevel, actual.ImpactLevel)
			assert.Equal(t, tc.expectChecks, actual.RequiredChecks)
			assert.Equal(t, tc.expectTyped, actual.RequiresTypedConfirmation)
			assert.Equal(t, tc.expectText, actual.ConfirmationText)
			assert.Equal(t, tc.unclassified, actual.Unclassified)
			if tc.expectWarning != "" {
				assert.Contains(t, actual.Warnings, tc.expectWarning)
			}
			require.NotNil(t, actual.Preview)
			assert.Equal(t, tc.op.Kind, actual.Preview.Operation)
		})
	}
}

func TestAnalyzer_Deterministic(t *testing.T) {
	analyzer := New(WithProductionEnvironments("prod"))
	op := &model.Operation{
		Kind:        "integration.update",
		Target:      "crm",
		Environment: "prod",
		Changes: []*model.FieldChange{
			{Field: "api_key", Before: "a", After: "b"},
			{Field: "token", Before: "c", After: "d"},
		},
	}
	first := analyzer.Analyze(context.Background(), op)
	for i := 0; i < 10; i++ {
		next := analyzer.Analyze(context.Background(), op)
		assert.Equal(t, first.RequiredChecks, next.RequiredChecks)
		assert.Equal(t, first.Warnings, next.Warnings)
		assert.Equal(t, first.ConfirmationText, next.ConfirmationText)
	}
	assert.Equal(t, []string{
		"I have reviewed every field change on integration crm",
		"Change to production environment prod is authorised",
	}, first.RequiredChecks)
}

func TestAnalyzer_CustomRule(t *testing.T) {
	analyzer := New(WithRule("Queue.Purge", func(op *model.Operation) *Finding {
		return &Finding{Level: model.ImpactHigh, Checks: []string{"Consumers paused", "Consumers paused"}}
	}))
	actual := analyzer.Analyze(context.Background(), &model.Operation{Kind: "queue.purge", Target: "jobs"})
	assert.Equal(t, model.ImpactHigh, actual.ImpactLevel)
	assert.Equal(t, []string{"Consumers paused"}, actual.RequiredChecks)
	assert.False(t, actual.Unclassified)
}

func TestAnalyzer_InvalidRuleLevelFailsClosed(t *testing.T) {
	analyzer := New(WithRule("noop", func(op *model.Operation) *Finding {
		return &Finding{}
	}))
	actual := analyzer.Analyze(context.Background(), &model.Operation{Kind: "noop"})
	assert.Equal(t, model.ImpactCritical, actual.ImpactLevel)
	assert.True(t, actual.Unclassified)
	assert.Equal(t, []string{UnrecognizedCheck}, actual.RequiredChecks)
}

func TestAnalyzer_Escalations(t *testing.T) {
	escalations, err := NewEscalations(
		&EscalationRule{
			Name:       "large-bulk",
			Expression: `op.kind == "device.update" && op.changes > 2`,
			Level:      "high",
			Warning:    "Large bulk update",
			Check:      "Change ticket is linked",
		},
		&EscalationRule{
			Name:       "vip",
			Expression: `"vip" in op.flags`,
			Level:      "critical",
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, escalations.Len())

	analyzer := New(WithEscalations(escalations))
	op := &model.Operation{Kind: "device.update", Target: "d1", Changes: []*model.FieldChange{
		{Field: "a", After: 1}, {Field: "b", After: 2}, {Field: "c", After: 3},
	}}
	actual := analyzer.Analyze(context.Background(), op)
	assert.Equal(t, model.ImpactHigh, actual.ImpactLevel)
	assert.Contains(t, actual.Warnings, "Large bulk update")
	assert.Contains(t, actual.RequiredChecks, "Change ticket is linked")
	assert.False(t, actual.RequiresTypedConfirmation)

	op.Flags = []string{"vip"}
	actual = analyzer.Analyze(context.Background(), op)
	assert.Equal(t, model.ImpactCritical, actual.ImpactLevel)
	assert.True(t, actual.RequiresTypedConfirmation)
}

func TestNewEscalations_Invalid(t *testing.T) {
	type testCase struct {
		name string
		rule *EscalationRule
	}
	testCases := []testCase{
		{name: "syntax", rule: &EscalationRule{Name: "bad", Expression: "op.kind ==", Level: "high"}},
		{name: "level", rule: &EscalationRule{Name: "bad", Expression: "true", Level: "severe"}},
		{name: "undeclared variable", rule: &EscalationRule{Name: "bad", Expression: "step.kind == 'x'", Level: "high"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEscalations(tc.rule)
			assert.Error(t, err)
		})
	}
}

func TestAttach(t *testing.T) {
	analyzer := New()
	step := model.NewStep("s1", 1, model.ModeValidationRequired, &model.Operation{Kind: "record.delete", Target: "t"})
	assessment := analyzer.Analyze(context.Background(), step.Operation)
	require.NoError(t, Attach(step, assessment))
	require.NotNil(t, step.ImpactLevel)
	assert.Equal(t, model.ImpactHigh, *step.ImpactLevel)
	assert.Equal(t, assessment.RequiredChecks, step.RequiredChecks)

	other := &Assessment{ImpactLevel: model.ImpactLow}
	assert.Error(t, Attach(step, other))
	assert.Equal(t, model.ImpactHigh, *step.ImpactLevel)
}
