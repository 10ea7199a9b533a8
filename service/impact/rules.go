package impact

import (
	"fmt"
	"strings"

	"github.com/viant/fluxgate/model"
)

// Payment thresholds in integer minor units.
const (
	HighAmountThreshold     int64 = 100_000
	CriticalAmountThreshold int64 = 1_000_000
	bulkChangeThreshold           = 5
)

var sensitiveFieldMarkers = []string{"password", "secret", "token", "credential", "apikey", "api_key", "routing", "firmware", "sip"}

// IsSensitiveField reports whether a field name refers to credentials,
// call routing or firmware.
func IsSensitiveField(field string) bool {
	normalized := strings.ToLower(field)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in rule table keyed by operation kind.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"device.update":       fieldUpdateRule("device"),
		"device.delete":       deviceDelete,
		"device.reboot":       deviceReboot,
		"integration.connect": integrationConnect,
		"integration.update":  fieldUpdateRule("integration"),
		"integration.delete":  integrationDelete,
		"compute.provision":   computeProvision,
		"compute.terminate":   computeTerminate,
		"record.create":       recordCreate,
		"record.update":       fieldUpdateRule("record"),
		"record.delete":       recordDelete,
		"payment.charge":      paymentRule("charge"),
		"payment.refund":      paymentRule("refund"),
		"ivr.publish":         ivrPublish,
	}
}

func targetOf(op *model.Operation, fallback string) string {
	if op.Target != "" {
		return op.Target
	}
	return fallback
}

func fieldUpdateRule(subject string) Rule {
	return func(op *model.Operation) *Finding {
		ret := &Finding{Level: model.ImpactLow}
		for _, change := range op.Changes {
			if change == nil || !IsSensitiveField(change.Field) {
				continue
			}
			ret.Level = ret.Level.Max(model.ImpactMedium)
			ret.Warnings = append(ret.Warnings, fmt.Sprintf("Field %q is security or routing sensitive", change.Field))
		}
		if len(op.Changes) > bulkChangeThreshold {
			ret.Level = ret.Level.Max(model.ImpactMedium)
			ret.Warnings = append(ret.Warnings, fmt.Sprintf("Bulk change of %d fields", len(op.Changes)))
		}
		if ret.Level.AtLeast(model.ImpactMedium) {
			ret.Checks = append(ret.Checks, fmt.Sprintf("I have reviewed every field change on %s %s", subject, targetOf(op, "target")))
		}
		return ret
	}
}

func deviceDelete(op *model.Operation) *Finding {
	target := targetOf(op, "device")
	return &Finding{
		Level:    model.ImpactHigh,
		Warnings: []string{fmt.Sprintf("Device %s will be removed from inventory", target)},
		Checks: []string{
			fmt.Sprintf("Device %s has been physically decommissioned", target),
			"No call routes reference this device",
		},
	}
}

func deviceReboot(op *model.Operation) *Finding {
	target := targetOf(op, "device")
	return &Finding{
		Level:    model.ImpactMedium,
		Warnings: []string{fmt.Sprintf("Active calls on %s will be dropped", target)},
		Checks:   []string{"Reboot is scheduled inside the maintenance window"},
	}
}

func integrationConnect(op *model.Operation) *Finding {
	ret := &Finding{Level: model.ImpactLow}
	for _, change := range op.Changes {
		if change != nil && IsSensitiveField(change.Field) {
			ret.Level = model.ImpactMedium
			ret.Checks = []string{fmt.Sprintf("Credentials for %s were issued for this workspace", targetOf(op, "integration"))}
			break
		}
	}
	return ret
}

func integrationDelete(op *model.Operation) *Finding {
	return &Finding{
		Level:    model.ImpactHigh,
		Warnings: []string{fmt.Sprintf("Automations using %s will stop working", targetOf(op, "the integration"))},
		Checks:   []string{"Dependent automations have been disabled"},
	}
}

func computeProvision(op *model.Operation) *Finding {
	ret := &Finding{Level: model.ImpactMedium}
	if op.Transaction != nil {
		total := op.Transaction.Total()
		ret.Level = ret.Level.Max(amountLevel(total))
		ret.Checks = append(ret.Checks, fmt.Sprintf("Budget approved for %s %d", op.Transaction.Currency, total))
	}
	return ret
}

func computeTerminate(op *model.Operation) *Finding {
	target := targetOf(op, "instance")
	return &Finding{
		Level:    model.ImpactCritical,
		Warnings: []string{fmt.Sprintf("Instance %s and its local storage will be destroyed", target)},
		Checks:   []string{fmt.Sprintf("Data on %s has been backed up", target)},
	}
}

func recordCreate(op *model.Operation) *Finding {
	ret := &Finding{Level: model.ImpactLow}
	for field := range op.Record {
		if IsSensitiveField(field) {
			ret.Level = model.ImpactMedium
			ret.Warnings = append(ret.Warnings, "New record stores credentials")
			break
		}
	}
	return ret
}

func recordDelete(op *model.Operation) *Finding {
	target := targetOf(op, "record")
	return &Finding{
		Level:    model.ImpactHigh,
		Warnings: []string{fmt.Sprintf("Record %s will be permanently deleted", target)},
		Checks:   []string{fmt.Sprintf("A backup of %s exists", target)},
	}
}

func paymentRule(verb string) Rule {
	return func(op *model.Operation) *Finding {
		if op.Transaction == nil || len(op.Transaction.Items) == 0 {
			return &Finding{
				Level:    model.ImpactHigh,
				Warnings: []string{fmt.Sprintf("Payment %s has no transaction breakdown", verb)},
				Checks:   []string{"Amount was verified out of band"},
			}
		}
		total := op.Transaction.Total()
		ret := &Finding{Level: amountLevel(total).Max(model.ImpactMedium)}
		ret.Checks = append(ret.Checks, fmt.Sprintf("The %s total of %s %d is correct", verb, op.Transaction.Currency, total))
		if verb == "refund" {
			ret.Level = ret.Level.Max(model.ImpactHigh)
			ret.Warnings = append(ret.Warnings, "Refunds cannot be reversed")
		}
		if total <= 0 {
			ret.Warnings = append(ret.Warnings, fmt.Sprintf("Transaction total is %d", total))
		}
		return ret
	}
}

func amountLevel(total int64) model.ImpactLevel {
	switch {
	case total >= CriticalAmountThreshold:
		return model.ImpactCritical
	case total >= HighAmountThreshold:
		return model.ImpactHigh
	default:
		return model.ImpactLow
	}
}

func ivrPublish(op *model.Operation) *Finding {
	return &Finding{
		Level:    model.ImpactMedium,
		Warnings: []string{fmt.Sprintf("Call flow %s takes effect immediately for inbound calls", targetOf(op, "draft"))},
		Checks:   []string{"The call flow was tested end to end"},
	}
}
