package impact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	sgdiff "github.com/sourcegraph/go-diff/diff"
	"github.com/viant/fluxgate/model"
)

const masked = "********"

// BuildPreview describes op for a human reviewer. Field changes and record
// payloads are rendered as a unified diff of "field: value" lines; sensitive
// record values are masked in both the record and the diff.
func BuildPreview(op *model.Operation) (*model.Preview, error) {
	if op == nil {
		return nil, nil
	}
	clone := op.Clone()
	ret := &model.Preview{
		Operation:   op.Kind,
		Target:      op.Target,
		Environment: op.Environment,
		Changes:     clone.Changes,
		Record:      maskRecord(clone.Record),
		Transaction: clone.Transaction,
	}
	before, after := previewLines(op)
	if len(before) == 0 && len(after) == 0 {
		return ret, nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render preview diff: %w", err)
	}
	if diff == "" {
		return ret, nil
	}
	ret.Diff = diff
	fileDiff, err := sgdiff.ParseFileDiff([]byte(diff))
	if err != nil {
		return nil, fmt.Errorf("failed to parse preview diff: %w", err)
	}
	stat := fileDiff.Stat()
	ret.Stat = &model.DiffStat{Added: int(stat.Added), Changed: int(stat.Changed), Deleted: int(stat.Deleted)}
	return ret, nil
}

func previewLines(op *model.Operation) (before, after []string) {
	for _, change := range op.Changes {
		if change == nil {
			continue
		}
		if change.Before != nil {
			before = append(before, formatLine(change.Field, change.Before))
		}
		if change.After != nil {
			after = append(after, formatLine(change.Field, change.After))
		}
	}
	if len(op.Record) > 0 {
		keys := make([]string, 0, len(op.Record))
		for key := range op.Record {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := op.Record[key]
			if IsSensitiveField(key) {
				value = masked
			}
			after = append(after, formatLine(key, value))
		}
	}
	return before, after
}

func maskRecord(record map[string]interface{}) map[string]interface{} {
	for key := range record {
		if IsSensitiveField(key) {
			record[key] = masked
		}
	}
	return record
}

func formatLine(field string, value interface{}) string {
	text := strings.ReplaceAll(fmt.Sprintf("%v", value), "\n", `\n`)
	return field + ": " + text + "\n"
}
