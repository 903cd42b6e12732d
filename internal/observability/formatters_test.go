package observability

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmaher/flowline/internal/engine"
	"github.com/dmaher/flowline/internal/types"
)

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	run := &types.Run{
		ID:      uuid.New(),
		Status:  types.RunSucceeded,
		Release: types.ReleaseAutoDeliver,
		Cost:    1.25,
		Retries: 2,
	}
	p.PrintRunSummary(run)

	out := buf.String()
	assert.Contains(t, out, "RUN SUMMARY")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "auto_deliver")
	assert.Contains(t, out, "1.2500")
	assert.Contains(t, out, "Retries:  2")
}

func TestPrintRunSummary_NilIsSilent(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintStageResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	run := &types.Run{
		Results: map[string]*types.StageResult{
			"extract": {Stage: "extract", Status: types.StageSucceeded, Resumed: true},
			"enrich":  {Stage: "enrich", Status: types.StageFailed, Error: "boom"},
			"deliver": {Stage: "deliver", Status: types.StageSkipped},
		},
	}
	p.PrintStageResults(run, []string{"extract", "enrich", "deliver"})

	out := buf.String()
	assert.Contains(t, out, "✓ extract (succeeded, resumed)")
	assert.Contains(t, out, "✗ enrich (failed)")
	assert.Contains(t, out, "- deliver (skipped)")
	assert.Contains(t, out, "boom")
}

func TestPrintQualityScore_SchemaErrors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintQualityScore("report", &types.QualityScore{
		Composite:      0.42,
		ChecklistRatio: 0.5,
		SchemaValid:    false,
		SchemaErrors:   []string{"title: is required"},
	})

	out := buf.String()
	assert.Contains(t, out, "QUALITY SCORE")
	assert.Contains(t, out, "INVALID")
	assert.Contains(t, out, "title: is required")
}

func TestPrintUpsertReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintUpsertReport(&types.UpsertReport{
		Created:  1,
		Updated:  1,
		Outcomes: map[string]types.UpsertOutcome{"acme": types.OutcomeCreated, "globex": types.OutcomeUpdated},
	})

	out := buf.String()
	assert.Contains(t, out, "Created:  1")
	assert.Contains(t, out, "Updated:  1")

	buf.Reset()
	p.PrintUpsertReport(nil)
	assert.Contains(t, buf.String(), "NO RECORDS PERSISTED")
}

func TestProgress_FormatsEvents(t *testing.T) {
	var buf bytes.Buffer
	cb := NewPrinter(&buf).Progress()

	cb(engine.ProgressEvent{Category: engine.CategoryStage, Stage: "extract", Message: "succeeded"})
	cb(engine.ProgressEvent{Category: engine.CategoryRun, Message: "run finished"})

	out := buf.String()
	assert.Contains(t, out, "[stage] extract: succeeded")
	assert.Contains(t, out, "[run] run finished")
}
