package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `name: provisioning
approvalWindow: 10s
steps:
  - id: create
    mode: validation_required
    operation:
      kind: record.create
      target: customer
      record:
        name: acme
        api_token: xyz
  - id: reboot
    mode: always_manual
    operation:
      kind: device.reboot
      target: edge-1
  - id: notify
    mode: always_auto
    operation:
      kind: record.update
      target: customer
      changes:
        - field: status
          before: pending
          after: active
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	location := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(location, []byte(content), 0o644))
	return location
}

func execute(args ...string) (int, string, string) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	code := Execute(context.Background(), append([]string{"--log-level", "error"}, args...), out, errOut)
	return code, out.String(), errOut.String()
}

func TestRunCommand(t *testing.T) {
	workflow := writeFile(t, "workflow.yaml", workflowYAML)

	var testCases = []struct {
		description string
		args        []string
		expectCode  int
		expectOut   []string
		expectErr   string
	}{
		{
			description: "auto approve completes every step",
			args:        []string{"run", "-w", workflow, "--auto-approve", "--delay", "1ms", "--timeout", "5s"},
			expectOut:   []string{": completed", "create", "reboot", "notify", "progress: 3/3"},
		},
		{
			description: "auto reject halts the run",
			args:        []string{"run", "-w", workflow, "--auto-reject", "not today", "--delay", "1ms", "--timeout", "5s"},
			expectCode:  2,
			expectOut:   []string{"rejected", "progress: 0/3"},
		},
		{
			description: "executor failure halts the run",
			args:        []string{"run", "-w", workflow, "--auto-approve", "--fail-step", "reboot", "--delay", "1ms", "--timeout", "5s"},
			expectCode:  2,
			expectOut:   []string{"failed", "progress: 1/3"},
		},
		{
			description: "verbose prints executed steps",
			args:        []string{"run", "-w", workflow, "--auto-approve", "--delay", "1ms", "--timeout", "5s", "-v"},
			expectOut:   []string{`"stepId":"create"`, `"ok":true`},
		},
		{
			description: "conflicting decision flags",
			args:        []string{"run", "-w", workflow, "--auto-approve", "--auto-reject", "no"},
			expectCode:  1,
			expectErr:   "mutually exclusive",
		},
		{
			description: "missing workflow",
			args:        []string{"run", "-w", filepath.Join(t.TempDir(), "missing.yaml")},
			expectCode:  1,
			expectErr:   "failed to load workflow",
		},
		{
			description: "invalid log level",
			args:        []string{"--log-level", "loud", "run", "-w", workflow},
			expectCode:  1,
			expectErr:   "log.level",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			code, out, errOut := execute(testCase.args...)
			assert.Equal(t, testCase.expectCode, code, errOut)
			for _, fragment := range testCase.expectOut {
				assert.Contains(t, out, fragment)
			}
			if testCase.expectErr != "" {
				assert.Contains(t, errOut, testCase.expectErr)
			}
		})
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	workflow := writeFile(t, "workflow.yaml", workflowYAML)
	code, out, _ := execute("run", "-w", workflow, "--delay", "1ms", "--timeout", "50ms")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, "rejected: run cancelled")
}

func TestAnalyzeCommand(t *testing.T) {
	operation := writeFile(t, "refund.yaml", `kind: payment.refund
target: order-1
transaction:
  currency: USD
  items:
    - description: full refund
      amount: 2000000
`)
	code, out, errOut := execute("analyze", "-o", operation, "-m", "auto_monitored")
	require.Equal(t, 0, code, errOut)

	var assessment map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &assessment))
	assert.Equal(t, "critical", assessment["impactLevel"])
	assert.Equal(t, "auto_monitored", assessment["deploymentMode"])
	assert.Equal(t, false, assessment["approvalRequired"])
	assert.Equal(t, true, assessment["requiresTypedConfirmation"])

	code, _, errOut = execute("analyze", "-o", operation, "-m", "sometimes")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported deployment mode")
}

func TestAuditCommand(t *testing.T) {
	workflow := writeFile(t, "workflow.yaml", workflowYAML)
	dsn := filepath.Join(t.TempDir(), "audit.db")
	sink := []string{"--audit-driver", "sqlite", "--audit-dsn", dsn}

	code, out, errOut := execute(append(sink, "run", "-w", workflow, "--auto-approve", "--delay", "1ms", "--timeout", "5s")...)
	require.Equal(t, 0, code, errOut)
	var runID string
	_, err := fmt.Sscanf(strings.SplitN(out, "\n", 2)[0], "run %s", &runID)
	require.NoError(t, err)

	code, out, errOut = execute(append(sink, "audit", "--run", runID)...)
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for i, stepID := range []string{"create", "reboot"} {
		decision := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &decision))
		assert.Equal(t, runID, decision["runId"])
		assert.Equal(t, stepID, decision["stepId"])
		assert.Equal(t, "approve", decision["decision"])
	}

	code, _, errOut = execute("audit", "--run", runID)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "persistent sink")
}

func TestIsExitError(t *testing.T) {
	code, ok := IsExitError(fmt.Errorf("wrapped: %w", NewExitError(3)))
	assert.True(t, ok)
	assert.Equal(t, 3, code)
	_, ok = IsExitError(fmt.Errorf("plain"))
	assert.False(t, ok)
}
