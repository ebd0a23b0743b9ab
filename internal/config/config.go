// Package config loads the YAML configuration recognized by the core (§6).
// It is deliberately not itself a schema validator beyond what Validate
// checks — §6 calls the schema "external" — but it owns the one YAML shape
// the CLI entrypoint reads, and the conversion into each security
// collaborator's own Config type (policy.Config, scanner.Config, and so
// on), the same layering the teacher used for its own oktsec.yaml: one
// flat struct tree unmarshaled with gopkg.in/yaml.v3, defaults applied
// after unmarshal, then handed to each subsystem's constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentwall/agentwall/internal/audit"
	"github.com/agentwall/agentwall/internal/chain"
	"github.com/agentwall/agentwall/internal/egress"
	"github.com/agentwall/agentwall/internal/injection"
	"github.com/agentwall/agentwall/internal/killswitch"
	"github.com/agentwall/agentwall/internal/policy"
	"github.com/agentwall/agentwall/internal/scanner"
)

// Config is the top-level Agent Wall configuration (§6).
type Config struct {
	Mode            string           `yaml:"mode,omitempty"`
	DefaultAction   string           `yaml:"defaultAction,omitempty"`
	GlobalRateLimit *RateLimit       `yaml:"globalRateLimit,omitempty"`
	Rules           []Rule           `yaml:"rules,omitempty"`
	ResponseScanning ResponseScanning `yaml:"responseScanning,omitempty"`
	Security        Security         `yaml:"security,omitempty"`

	Audit AuditConfig `yaml:"audit,omitempty"`
	Dashboard DashboardConfig `yaml:"dashboard,omitempty"`
}

// RateLimit mirrors policy.RateLimit at the YAML boundary.
type RateLimit struct {
	MaxCalls      int `yaml:"maxCalls"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// Rule mirrors policy.Rule at the YAML boundary.
type Rule struct {
	Name        string            `yaml:"name"`
	ToolPattern string            `yaml:"toolPattern"`
	Match       map[string]string `yaml:"match,omitempty"`
	Action      string            `yaml:"action"`
	Message     string            `yaml:"message,omitempty"`
	RateLimit   *RateLimit        `yaml:"rateLimit,omitempty"`
}

// ResponseScanning mirrors scanner.Config at the YAML boundary.
type ResponseScanning struct {
	Enabled         bool           `yaml:"enabled,omitempty"`
	MaxResponseSize int            `yaml:"maxResponseSize,omitempty"`
	OversizeAction  string         `yaml:"oversizeAction,omitempty"`
	DetectSecrets   *bool          `yaml:"detectSecrets,omitempty"`
	DetectPII       bool           `yaml:"detectPII,omitempty"`
	Base64Action    string         `yaml:"base64Action,omitempty"`
	MaxPatterns     int            `yaml:"maxPatterns,omitempty"`
	Patterns        []CustomPattern `yaml:"patterns,omitempty"`
}

// CustomPattern mirrors scanner.CustomPattern at the YAML boundary.
type CustomPattern struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Action   string `yaml:"action"`
	Pattern  string `yaml:"pattern"`
}

// Security groups the per-collaborator blocks nested under security in §6.
type Security struct {
	InjectionDetection InjectionDetection `yaml:"injectionDetection,omitempty"`
	EgressControl      EgressControl      `yaml:"egressControl,omitempty"`
	KillSwitch         KillSwitchConfig   `yaml:"killSwitch,omitempty"`
	ChainDetection     ChainDetection     `yaml:"chainDetection,omitempty"`
	Signing            bool               `yaml:"signing,omitempty"`
	SigningKey         string             `yaml:"signingKey,omitempty"`
}

// InjectionDetection mirrors injection.Config at the YAML boundary.
type InjectionDetection struct {
	Enabled        *bool           `yaml:"enabled,omitempty"`
	Sensitivity    string          `yaml:"sensitivity,omitempty"`
	CustomPatterns []InjectionPattern `yaml:"customPatterns,omitempty"`
	ExcludeTools   []string        `yaml:"excludeTools,omitempty"`
}

// InjectionPattern mirrors injection.CustomPattern at the YAML boundary.
type InjectionPattern struct {
	Name       string `yaml:"name"`
	Category   string `yaml:"category"`
	Confidence string `yaml:"confidence"`
	Pattern    string `yaml:"pattern"`
}

// EgressControl mirrors egress.Config at the YAML boundary.
type EgressControl struct {
	Enabled                bool     `yaml:"enabled,omitempty"`
	AllowedDomains         []string `yaml:"allowedDomains,omitempty"`
	BlockedDomains         []string `yaml:"blockedDomains,omitempty"`
	BlockPrivateIPs        *bool    `yaml:"blockPrivateIPs,omitempty"`
	BlockMetadataEndpoints *bool    `yaml:"blockMetadataEndpoints,omitempty"`
	ExcludeTools           []string `yaml:"excludeTools,omitempty"`
}

// KillSwitchConfig mirrors killswitch.Config at the YAML boundary.
type KillSwitchConfig struct {
	Enabled        bool     `yaml:"enabled,omitempty"`
	CheckFile      string   `yaml:"checkFile,omitempty"`
	KillFileNames  []string `yaml:"killFileNames,omitempty"`
	PollIntervalMs int      `yaml:"pollIntervalMs,omitempty"`
}

// ChainDetection mirrors chain.Config at the YAML boundary.
type ChainDetection struct {
	Enabled      bool           `yaml:"enabled,omitempty"`
	WindowSize   int            `yaml:"windowSize,omitempty"`
	WindowMs     int            `yaml:"windowMs,omitempty"`
	CustomChains []ChainPattern `yaml:"customChains,omitempty"`
}

// ChainPattern mirrors chain.ChainPattern at the YAML boundary.
type ChainPattern struct {
	Name           string   `yaml:"name"`
	Severity       string   `yaml:"severity"`
	TrackArguments bool     `yaml:"trackArguments,omitempty"`
	Sequence       []string `yaml:"sequence"`
}

// AuditConfig is the CLI-level audit sink configuration; §6 names signing
// and signingKey under security, the rest (file path, rotation, redaction)
// is left to the CLI collaborator, same as §6's "environment access lives
// in the CLI collaborator" note.
type AuditConfig struct {
	FilePath     string `yaml:"filePath,omitempty"`
	StderrMirror bool   `yaml:"stderrMirror,omitempty"`
	Redact       *bool  `yaml:"redact,omitempty"`
	MaxArgLength int    `yaml:"maxArgLength,omitempty"`
	MaxFileSize  int64  `yaml:"maxFileSize,omitempty"`
	MaxFiles     int    `yaml:"maxFiles,omitempty"`
}

// DashboardConfig is the CLI-level dashboard transport configuration (§4.10
// "supplemented" HTTP layer) — not itself part of the core's recognized
// schema, but the natural place for the CLI to read a listen address from.
type DashboardConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	Listen        string `yaml:"listen,omitempty"`
	StatsInterval int    `yaml:"statsIntervalMs,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Defaults returns a Config with every field at the default §6 names.
func Defaults() *Config {
	return &Config{
		Mode:          string(policy.ModeStandard),
		DefaultAction: string(policy.Prompt),
		ResponseScanning: ResponseScanning{
			Enabled:       true,
			DetectSecrets: boolPtr(true),
			Base64Action:  "pass",
			OversizeAction: "redact",
			MaxPatterns:   100,
		},
		Security: Security{
			InjectionDetection: InjectionDetection{
				Enabled:     boolPtr(true),
				Sensitivity: "medium",
			},
			EgressControl: EgressControl{
				Enabled:                false,
				BlockPrivateIPs:        boolPtr(true),
				BlockMetadataEndpoints: boolPtr(true),
			},
			KillSwitch: KillSwitchConfig{
				Enabled: true,
			},
			ChainDetection: ChainDetection{
				Enabled:    true,
				WindowSize: 20,
				WindowMs:   60000,
			},
		},
		Audit: AuditConfig{
			Redact:       boolPtr(true),
			MaxArgLength: 200,
		},
		Dashboard: DashboardConfig{
			Listen: "127.0.0.1:7474",
		},
	}
}

// Load reads and parses an Agent Wall config file, applying Defaults()
// first so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to a YAML file at path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the parts of the schema the core itself relies on — §6
// says the full schema is external, so this stays narrow: the enums the
// conversion helpers below switch on, and the invariants a bad value would
// otherwise silently violate downstream.
func (c *Config) Validate() error {
	switch policy.Mode(c.Mode) {
	case policy.ModeStandard, policy.ModeStrict:
	default:
		return fmt.Errorf("invalid mode %q (must be standard or strict)", c.Mode)
	}
	switch policy.Action(c.DefaultAction) {
	case policy.Allow, policy.Deny, policy.Prompt:
	default:
		return fmt.Errorf("invalid defaultAction %q", c.DefaultAction)
	}
	if c.GlobalRateLimit != nil {
		if c.GlobalRateLimit.MaxCalls <= 0 || c.GlobalRateLimit.WindowSeconds <= 0 {
			return fmt.Errorf("globalRateLimit requires maxCalls > 0 and windowSeconds > 0")
		}
	}
	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule with empty name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		switch policy.Action(r.Action) {
		case policy.Allow, policy.Deny, policy.Prompt:
		default:
			return fmt.Errorf("rule %q has invalid action %q", r.Name, r.Action)
		}
	}
	if sens := c.Security.InjectionDetection.Sensitivity; sens != "" {
		switch sens {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("invalid security.injectionDetection.sensitivity %q", sens)
		}
	}
	return nil
}

// PolicyConfig converts the YAML rules block into policy.Config.
func (c *Config) PolicyConfig() policy.Config {
	rules := make([]policy.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		pr := policy.Rule{
			Name:        r.Name,
			ToolPattern: r.ToolPattern,
			Action:      policy.Action(r.Action),
			Message:     r.Message,
		}
		if len(r.Match) > 0 {
			pr.Match = policy.ArgumentMatch(r.Match)
		}
		if r.RateLimit != nil {
			pr.RateLimit = &policy.RateLimit{MaxCalls: r.RateLimit.MaxCalls, WindowSeconds: r.RateLimit.WindowSeconds}
		}
		rules = append(rules, pr)
	}
	cfg := policy.Config{
		Mode:          policy.Mode(c.Mode),
		DefaultAction: policy.Action(c.DefaultAction),
		Rules:         rules,
	}
	if c.GlobalRateLimit != nil {
		cfg.GlobalRateLimit = &policy.RateLimit{
			MaxCalls:      c.GlobalRateLimit.MaxCalls,
			WindowSeconds: c.GlobalRateLimit.WindowSeconds,
		}
	}
	return cfg
}

// ScannerConfig converts the YAML responseScanning block into scanner.Config.
func (c *Config) ScannerConfig() scanner.Config {
	rs := c.ResponseScanning
	cfg := scanner.DefaultConfig()
	cfg.DetectPII = rs.DetectPII
	if rs.DetectSecrets != nil {
		cfg.DetectSecrets = *rs.DetectSecrets
	}
	if rs.Base64Action != "" {
		cfg.Base64Action = scanner.Action(rs.Base64Action)
	}
	if rs.MaxResponseSize > 0 {
		cfg.MaxResponseSize = rs.MaxResponseSize
	}
	if rs.OversizeAction != "" {
		cfg.OversizeAction = scanner.Action(rs.OversizeAction)
	}
	if rs.MaxPatterns > 0 {
		cfg.MaxPatterns = rs.MaxPatterns
	}
	for _, p := range rs.Patterns {
		cfg.CustomPatterns = append(cfg.CustomPatterns, scanner.CustomPattern{
			Name:     p.Name,
			Category: scanner.Category(p.Category),
			Action:   scanner.Action(p.Action),
			Pattern:  p.Pattern,
		})
	}
	return cfg
}

// ScanningEnabled reports whether the response scanner should be
// constructed at all (§6's responseScanning.enabled, default true).
func (c *Config) ScanningEnabled() bool {
	return c.ResponseScanning.Enabled
}

// InjectionConfig converts the YAML security.injectionDetection block into
// injection.Config.
func (c *Config) InjectionConfig() injection.Config {
	id := c.Security.InjectionDetection
	cfg := injection.DefaultConfig()
	cfg.ExcludeTools = id.ExcludeTools
	if id.Sensitivity != "" {
		switch id.Sensitivity {
		case "low":
			cfg.Sensitivity = injection.SensitivityLow
		case "high":
			cfg.Sensitivity = injection.SensitivityHigh
		default:
			cfg.Sensitivity = injection.SensitivityMedium
		}
	}
	for _, p := range id.CustomPatterns {
		conf := injection.Medium
		switch p.Confidence {
		case "low":
			conf = injection.Low
		case "high":
			conf = injection.High
		}
		cfg.Custom = append(cfg.Custom, injection.CustomPattern{
			Name:       p.Name,
			Category:   injection.Category(p.Category),
			Confidence: conf,
			Pattern:    p.Pattern,
		})
	}
	return cfg
}

// InjectionEnabled reports whether the injection detector should be wired
// into the engine (§6 security.injectionDetection.enabled, default true).
func (c *Config) InjectionEnabled() bool {
	if c.Security.InjectionDetection.Enabled == nil {
		return true
	}
	return *c.Security.InjectionDetection.Enabled
}

// EgressConfig converts the YAML security.egressControl block into
// egress.Config.
func (c *Config) EgressConfig() egress.Config {
	ec := c.Security.EgressControl
	cfg := egress.DefaultConfig()
	cfg.AllowedDomains = ec.AllowedDomains
	cfg.BlockedDomains = ec.BlockedDomains
	cfg.ExcludeTools = ec.ExcludeTools
	if ec.BlockPrivateIPs != nil {
		cfg.BlockPrivateIPs = *ec.BlockPrivateIPs
	}
	if ec.BlockMetadataEndpoints != nil {
		cfg.BlockMetadataEndpoints = *ec.BlockMetadataEndpoints
	}
	return cfg
}

// EgressEnabled reports whether the egress checker should be wired into the
// engine (§6 security.egressControl.enabled, default false).
func (c *Config) EgressEnabled() bool {
	return c.Security.EgressControl.Enabled
}

// KillSwitchConfig converts the YAML security.killSwitch block into
// killswitch.Config.
func (c *Config) KillSwitchConfig() killswitch.Config {
	ks := c.Security.KillSwitch
	cfg := killswitch.Config{}
	if ks.CheckFile != "" {
		cfg.KillFilePaths = append(cfg.KillFilePaths, ks.CheckFile)
	}
	for _, name := range ks.KillFileNames {
		cfg.KillFilePaths = append(cfg.KillFilePaths, name)
	}
	if ks.PollIntervalMs > 0 {
		cfg.PollInterval = time.Duration(ks.PollIntervalMs) * time.Millisecond
	}
	return cfg
}

// KillSwitchEnabled reports whether the kill switch should be constructed
// (§6 security.killSwitch.enabled, default true).
func (c *Config) KillSwitchEnabled() bool {
	return c.Security.KillSwitch.Enabled
}

// ChainConfig converts the YAML security.chainDetection block into
// chain.Config.
func (c *Config) ChainConfig() chain.Config {
	cd := c.Security.ChainDetection
	cfg := chain.DefaultConfig()
	if cd.WindowSize > 0 {
		cfg.WindowSize = cd.WindowSize
	}
	if cd.WindowMs > 0 {
		cfg.WindowMs = cd.WindowMs
	}
	for _, p := range cd.CustomChains {
		cfg.CustomChains = append(cfg.CustomChains, chain.ChainPattern{
			Name:           p.Name,
			Severity:       chain.Severity(p.Severity),
			TrackArguments: p.TrackArguments,
			Sequence:       p.Sequence,
		})
	}
	return cfg
}

// ChainEnabled reports whether the chain detector should be wired into the
// engine (§6 security.chainDetection.enabled, default true).
func (c *Config) ChainEnabled() bool {
	return c.Security.ChainDetection.Enabled
}

// AuditStoreConfig converts the YAML audit and security.signing/signingKey
// fields into audit.Config.
func (c *Config) AuditStoreConfig() audit.Config {
	a := c.Audit
	cfg := audit.Config{
		FilePath:     a.FilePath,
		StderrMirror: a.StderrMirror,
		Redact:       true,
		MaxArgLength: a.MaxArgLength,
		MaxFileSize:  a.MaxFileSize,
		MaxFiles:     a.MaxFiles,
		Signing:      c.Security.Signing,
		SigningKey:   c.Security.SigningKey,
	}
	if a.Redact != nil {
		cfg.Redact = *a.Redact
	}
	return cfg
}
