package config

import "testing"

func TestNewManagerStartsAtDefaults(t *testing.T) {
	m := NewManager()
	cfg := m.Config()
	def := DefaultConfig()
	if cfg.T2Score != def.T2Score || cfg.JournalPath != def.JournalPath {
		t.Fatalf("Config() = %+v, want defaults %+v", cfg, def)
	}
	if m.Source("t2_score") != SourceDefault {
		t.Fatalf("Source(t2_score) = %v, want default", m.Source("t2_score"))
	}
}

func TestApplyFileOverridesAndRecordsSource(t *testing.T) {
	m := NewManager()
	m.ApplyFile(Config{JournalPath: "/custom/journal", T2Score: 5})

	if m.Config().JournalPath != "/custom/journal" {
		t.Fatalf("JournalPath = %q, want /custom/journal", m.Config().JournalPath)
	}
	if m.Source("journal_path") != SourceFile {
		t.Fatalf("Source(journal_path) = %v, want file", m.Source("journal_path"))
	}
	if m.Config().T2Score != 5 {
		t.Fatalf("T2Score = %d, want 5", m.Config().T2Score)
	}
}

func TestLaterLayerWinsOverEarlier(t *testing.T) {
	m := NewManager()
	m.ApplyFile(Config{T2Score: 5})
	m.ApplyEnv(Config{T2Score: 7})
	m.ApplyCLI(Config{T2Score: 9})

	if m.Config().T2Score != 9 {
		t.Fatalf("T2Score = %d, want 9 (CLI wins)", m.Config().T2Score)
	}
	if m.Source("t2_score") != SourceCLI {
		t.Fatalf("Source(t2_score) = %v, want cli", m.Source("t2_score"))
	}
}

func TestUnsetFieldsDoNotOverwrite(t *testing.T) {
	m := NewManager()
	m.ApplyFile(Config{JournalPath: "/custom/journal"})
	m.ApplyEnv(Config{}) // no fields set

	if m.Config().JournalPath != "/custom/journal" {
		t.Fatalf("JournalPath = %q, want unchanged /custom/journal", m.Config().JournalPath)
	}
	if m.Source("journal_path") != SourceFile {
		t.Fatalf("Source(journal_path) = %v, want file (untouched by empty env layer)", m.Source("journal_path"))
	}
}

func TestSetEmergencyOnExhaustionHandlesFalse(t *testing.T) {
	m := NewManager()
	if !m.Config().EmergencyOnExhaustion {
		t.Fatal("default EmergencyOnExhaustion should be true")
	}
	m.SetEmergencyOnExhaustion(false, SourceCLI)
	if m.Config().EmergencyOnExhaustion {
		t.Fatal("expected EmergencyOnExhaustion to be set false")
	}
	if m.Source("emergency_on_exhaustion") != SourceCLI {
		t.Fatalf("Source(emergency_on_exhaustion) = %v, want cli", m.Source("emergency_on_exhaustion"))
	}
}
