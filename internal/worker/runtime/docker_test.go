package runtime

import (
	"path/filepath"
	"testing"
)

func TestMapToEnvList_Sorted(t *testing.T) {
	got := mapToEnvList(map[string]string{
		"PDSA_SEED":   "42",
		"PDSA_JOB_ID": "7",
	})
	want := []string{"PDSA_JOB_ID=7", "PDSA_SEED=42"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestJobBind_Absolute(t *testing.T) {
	bind, err := jobBind("jobs/7")
	if err != nil {
		t.Fatalf("jobBind failed: %v", err)
	}
	abs, _ := filepath.Abs("jobs/7")
	if bind != abs+":/job" {
		t.Errorf("unexpected bind %s", bind)
	}
}
