package pipeline

import (
	"encoding/json"
	"testing"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StagePlan, "plan"},
		{StageParse, "parse"},
		{StageCodemod, "codemod"},
		{StageDone, "done"},
		{StageFailed, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.stage.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStage_IsTerminal(t *testing.T) {
	tests := []struct {
		stage    Stage
		terminal bool
	}{
		{StagePlan, false},
		{StageParse, false},
		{StageCodemod, false},
		{StageDone, true},
		{StageFailed, true},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			if got := tt.stage.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestStage_Next(t *testing.T) {
	tests := []struct {
		stage Stage
		next  Stage
	}{
		{StagePlan, StageParse},
		{StageParse, StageCodemod},
		{StageCodemod, StageDone},
		{StageDone, StageDone},
		{StageFailed, StageFailed},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			if got := tt.stage.Next(); got != tt.next {
				t.Errorf("Next() = %q, want %q", got, tt.next)
			}
		})
	}
}

func TestVariant_MarshalText(t *testing.T) {
	data, err := json.Marshal(map[string]Variant{"a": VariantOK, "b": VariantFallback, "c": VariantError})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"a":"ok","b":"fallback","c":"error"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
	if got := Variant(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestTarget_Version(t *testing.T) {
	t.Run("exact wins", func(t *testing.T) {
		tg := Target{Latest: "^14", LatestExact: "14.2.3"}
		if got := tg.Version(); got != "14.2.3" {
			t.Errorf("Version() = %q, want 14.2.3", got)
		}
	})

	t.Run("falls back to latest", func(t *testing.T) {
		tg := Target{Latest: "latest"}
		if got := tg.Version(); got != "latest" {
			t.Errorf("Version() = %q, want latest", got)
		}
	})
}

func TestResult_Complete(t *testing.T) {
	var nilResult *Result
	if nilResult.Complete() {
		t.Error("nil result should not be complete")
	}
	if (&Result{Outcome: OutcomePlanOnly}).Complete() {
		t.Error("plan-only result should not be complete")
	}
	if !(&Result{Outcome: OutcomeComplete}).Complete() {
		t.Error("complete result should be complete")
	}
}
