package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     ScanRecord
		wantErr string
	}{
		{"valid", ScanRecord{SafeID: "abc", Path: "/a/b.txt", SizeBytes: 3}, ""},
		{"missing id", ScanRecord{Path: "/a/b.txt"}, "missing safe_id"},
		{"missing path", ScanRecord{SafeID: "abc"}, "missing path"},
		{"negative size", ScanRecord{SafeID: "abc", Path: "/a", SizeBytes: -1}, "negative size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPrimaryTag(t *testing.T) {
	assert.Equal(t, "src", ClassificationScore{Tags: []string{"src", "tests"}}.PrimaryTag())
	assert.Equal(t, UnclassifiedTag, ClassificationScore{}.PrimaryTag())
	assert.Equal(t, UnclassifiedTag, ClassificationScore{Tags: []string{""}}.PrimaryTag())
}

func TestPlanEntryAdvance(t *testing.T) {
	tests := []struct {
		from, to PlanState
		ok       bool
	}{
		{StatePlanned, StateMoving, true},
		{StatePlanned, StateFailed, true},
		{StateMoving, StateCommitted, true},
		{StateMoving, StateFailed, true},
		{StatePlanned, StateCommitted, false},
		{StateCommitted, StateMoving, false},
		{StateFailed, StateMoving, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			e := PlanEntry{SafeID: "x", State: tt.from}
			err := e.Advance(tt.to)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, e.State)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.from, e.State)
			}
		})
	}
}

func TestStageResultWarn(t *testing.T) {
	r := StageResult{Stage: "scan", Status: StatusSuccess}
	r.Warn("truncated")
	assert.Equal(t, StatusPartial, r.Status)
	assert.Equal(t, []string{"truncated"}, r.Warnings)

	failed := StageResult{Stage: "scan", Status: StatusFailure}
	failed.Warn("x")
	assert.Equal(t, StatusFailure, failed.Status)
}

func TestJournalEntryIsForward(t *testing.T) {
	assert.True(t, JournalEntry{Action: ActionMove}.IsForward())
	assert.True(t, JournalEntry{Action: ActionVersionRename}.IsForward())
	assert.False(t, JournalEntry{Action: ActionRestore}.IsForward())
}
