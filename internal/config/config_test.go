package config

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	c := DefaultConfig()
	if errs := c.Validate(); len(errs) != 0 {
		t.Fatalf("DefaultConfig() should validate cleanly, got %v", errs)
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	c := DefaultConfig()
	c.JournalPath = ""
	c.HealthReportPath = ""
	c.T2Score = 9
	c.T3Score = 3
	c.TriesT2 = 0
	c.LogLevel = "verbose"

	errs := c.Validate()
	if len(errs) < 5 {
		t.Fatalf("expected multiple accumulated errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateScoreOrdering(t *testing.T) {
	c := DefaultConfig()
	c.T3Score = 9
	c.T3ScoreRuntime = 3
	errs := c.Validate()
	found := false
	for _, err := range errs {
		if err != nil {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an error for t3_score exceeding t3_score_runtime")
	}
}
