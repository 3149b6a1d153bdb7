package models

import (
	"encoding/json"
	"testing"
)

func TestMethodJSON(t *testing.T) {
	data, err := json.Marshal(AllMethods)
	if err != nil {
		t.Fatal(err)
	}
	want := `["content-hash","perceptual","filename","size","metadata"]`
	if string(data) != want {
		t.Errorf("marshalled methods = %s, want %s", data, want)
	}
}

func TestMethodSet(t *testing.T) {
	set := MethodSet{MethodContentHash: true, MethodSize: false}
	if !set.Enabled(MethodContentHash) {
		t.Error("content-hash should be enabled")
	}
	if set.Enabled(MethodSize) || set.Enabled(MethodPerceptual) {
		t.Error("disabled and absent methods must read as off")
	}
	if set.Count() != 1 {
		t.Errorf("Count() = %d, want 1", set.Count())
	}
}

func TestRunResult_TotalDuplicates(t *testing.T) {
	res := &RunResult{
		Groups: []*DuplicateGroup{
			{Files: []*FileRecord{{}, {}}},
			{Files: []*FileRecord{{}, {}, {}}},
		},
	}
	if got := res.TotalDuplicates(); got != 3 {
		t.Errorf("TotalDuplicates() = %d, want 3", got)
	}
}
