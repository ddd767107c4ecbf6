package config

// ConfigSource identifies which layer a configuration value came from
// (teacher's node/config_manager.go ConfigSource, same four layers).
type ConfigSource int

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = iota
	// SourceFile indicates a value loaded from the TOML config file.
	SourceFile
	// SourceEnv indicates a value from a PAC_* environment variable.
	SourceEnv
	// SourceCLI indicates a value from a command-line flag.
	SourceCLI
)

// String returns a human-readable name for the config source.
func (s ConfigSource) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	case SourceCLI:
		return "cli"
	default:
		return "unknown"
	}
}

// Manager layers configuration from defaults, file, environment, and CLI
// flags, tracking which layer last touched each field so an operator can
// ask where a given value came from (pacctl read --config).
type Manager struct {
	cfg     Config
	sources map[string]ConfigSource
}

// NewManager creates a Manager seeded with DefaultConfig.
func NewManager() *Manager {
	return &Manager{
		cfg:     DefaultConfig(),
		sources: make(map[string]ConfigSource),
	}
}

// Config returns the manager's current, merged configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Source returns the ConfigSource that last set field, or SourceDefault if
// it has never been explicitly touched.
func (m *Manager) Source(field string) ConfigSource {
	src, ok := m.sources[field]
	if !ok {
		return SourceDefault
	}
	return src
}

// Sources returns a copy of every field->source mapping recorded so far,
// for pacctl's "read --config" provenance listing.
func (m *Manager) Sources() map[string]ConfigSource {
	out := make(map[string]ConfigSource, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// ApplyFile layers a parsed file config onto the manager, recording
// SourceFile against every field the file config set to a non-zero value.
func (m *Manager) ApplyFile(file Config) {
	m.merge(file, SourceFile)
}

// ApplyEnv layers a parsed environment config onto the manager.
func (m *Manager) ApplyEnv(env Config) {
	m.merge(env, SourceEnv)
}

// ApplyCLI layers a parsed CLI-flag config onto the manager.
func (m *Manager) ApplyCLI(cli Config) {
	m.merge(cli, SourceCLI)
}

// merge applies every non-zero field of src onto m.cfg, recording source
// against each touched field. Field-by-field rather than reflection-based,
// matching the teacher's hand-written mergeManagedConfig.
func (m *Manager) merge(src Config, source ConfigSource) {
	if src.JournalPath != "" {
		m.cfg.JournalPath = src.JournalPath
		m.sources["journal_path"] = source
	}
	if src.HealthReportPath != "" {
		m.cfg.HealthReportPath = src.HealthReportPath
		m.sources["health_report_path"] = source
	}
	if src.VerifierURL != "" {
		m.cfg.VerifierURL = src.VerifierURL
		m.sources["verifier_url"] = source
	}
	if src.StabilityHost != "" {
		m.cfg.StabilityHost = src.StabilityHost
		m.sources["stability_host"] = source
	}
	if src.BrownoutMarkerPath != "" {
		m.cfg.BrownoutMarkerPath = src.BrownoutMarkerPath
		m.sources["brownout_marker_path"] = source
	}
	if src.T2Score != 0 {
		m.cfg.T2Score = src.T2Score
		m.sources["t2_score"] = source
	}
	if src.T3Score != 0 {
		m.cfg.T3Score = src.T3Score
		m.sources["t3_score"] = source
	}
	if src.T3ScoreRuntime != 0 {
		m.cfg.T3ScoreRuntime = src.T3ScoreRuntime
		m.sources["t3_score_runtime"] = source
	}
	if src.TriesT2 != 0 {
		m.cfg.TriesT2 = src.TriesT2
		m.sources["tries_t2"] = source
	}
	if src.TriesT3 != 0 {
		m.cfg.TriesT3 = src.TriesT3
		m.sources["tries_t3"] = source
	}
	if src.BrownoutCooldownBoots != 0 {
		m.cfg.BrownoutCooldownBoots = src.BrownoutCooldownBoots
		m.sources["brownout_cooldown_boots"] = source
	}
	if src.TickInterval != 0 {
		m.cfg.TickInterval = src.TickInterval
		m.sources["tick_interval"] = source
	}
	if src.EmergencyCooldown != 0 {
		m.cfg.EmergencyCooldown = src.EmergencyCooldown
		m.sources["emergency_cooldown"] = source
	}
	if src.Tier3Grace != 0 {
		m.cfg.Tier3Grace = src.Tier3Grace
		m.sources["tier3_grace"] = source
	}
	if src.VerifierUnreachableStreak != 0 {
		m.cfg.VerifierUnreachableStreak = src.VerifierUnreachableStreak
		m.sources["verifier_unreachable_streak"] = source
	}
	if src.SustainedLowHealthStreak != 0 {
		m.cfg.SustainedLowHealthStreak = src.SustainedLowHealthStreak
		m.sources["sustained_low_health_streak"] = source
	}
	if src.NetworkStabilityWindow != 0 {
		m.cfg.NetworkStabilityWindow = src.NetworkStabilityWindow
		m.sources["network_stability_window"] = source
	}
	if src.ReachabilityProbeTimeout != 0 {
		m.cfg.ReachabilityProbeTimeout = src.ReachabilityProbeTimeout
		m.sources["reachability_probe_timeout"] = source
	}
	if src.LogLevel != "" {
		m.cfg.LogLevel = src.LogLevel
		m.sources["log_level"] = source
	}
	if src.LogFilePath != "" {
		m.cfg.LogFilePath = src.LogFilePath
		m.sources["log_file_path"] = source
	}
	if src.LogMaxSizeMB != 0 {
		m.cfg.LogMaxSizeMB = src.LogMaxSizeMB
		m.sources["log_max_size_mb"] = source
	}
	if src.LogMaxBackups != 0 {
		m.cfg.LogMaxBackups = src.LogMaxBackups
		m.sources["log_max_backups"] = source
	}
	if src.LogMaxAgeDays != 0 {
		m.cfg.LogMaxAgeDays = src.LogMaxAgeDays
		m.sources["log_max_age_days"] = source
	}

	// EmergencyOnExhaustion is a bool: false is a meaningful, settable
	// value, not "unset", so ApplyCLI/ApplyEnv/ApplyFile callers pass a
	// sentinel via SetEmergencyOnExhaustion instead of folding it in here.
}

// SetEmergencyOnExhaustion explicitly sets the one bool-typed knob whose
// zero value (false) is itself meaningful, so it cannot use the
// non-zero-wins merge rule the rest of Config's fields use.
func (m *Manager) SetEmergencyOnExhaustion(v bool, source ConfigSource) {
	m.cfg.EmergencyOnExhaustion = v
	m.sources["emergency_on_exhaustion"] = source
}
