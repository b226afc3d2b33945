// Package config loads the operator configuration: a YAML file decoded
// over defaults and checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Backend names accepted in store.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the full operator configuration. Field tags carry both the
// YAML names and the JSON names the CUE schema is checked against.
type Config struct {
	Store    StoreConfig    `yaml:"store" json:"store"`
	Chain    ChainConfig    `yaml:"chain" json:"chain"`
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// StoreConfig selects the CAS backend.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// Path is a database file for sqlite and a directory for badger.
	Path string `yaml:"path" json:"path"`
}

// ChainConfig names the chain head and its optional signing key.
type ChainConfig struct {
	Name string `yaml:"name" json:"name"`
	// SignerSeed is a hex Ed25519 seed. Headers are unsigned without it.
	SignerSeed string `yaml:"signer_seed,omitempty" json:"signer_seed,omitempty"`
}

// DispatchConfig bounds the action bridge.
type DispatchConfig struct {
	Timeout     string `yaml:"timeout" json:"timeout"`
	MaxInFlight int    `yaml:"max_in_flight" json:"max_in_flight"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Error reports a configuration value rejected by the schema.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is a schema violation.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Default returns the configuration used when no file is given: an
// in-memory store and a 10s dispatch timeout.
func Default() Config {
	return Config{
		Store: StoreConfig{Backend: BackendMemory},
		Chain: ChainConfig{Name: "default"},
		Dispatch: DispatchConfig{
			Timeout:     "10s",
			MaxInFlight: 1024,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path and decodes it over Default. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the embedded #Config schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}

	if _, err := time.ParseDuration(c.Dispatch.Timeout); err != nil {
		return &Error{Field: "dispatch.timeout", Message: err.Error()}
	}
	return nil
}

// schemaError reports the first CUE error with its field path.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	path := first.Path()
	if len(path) > 0 && path[0] == "#Config" {
		path = path[1:]
	}
	format, args := first.Msg()
	return &Error{
		Field:   strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// DispatchTimeout returns the parsed dispatch timeout. Call on a
// validated Config.
func (c Config) DispatchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Level returns the slog level for log.level.
func (c Config) Level() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
