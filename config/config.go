// Package config loads the dicomstore configuration from YAML and validates
// it against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomstore/dicom"
	"github.com/caio-sobreiro/dicomstore/events"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/types"
)

//go:embed schema.cue
var schemaSource string

// Config is the configuration of the SCP and of the sending commands.
// Durations are written in YAML as Go duration strings ("30s").
type Config struct {
	AETitle     string `yaml:"ae_title" json:"ae_title"`
	Port        int    `yaml:"port" json:"port"`
	StorageRoot string `yaml:"storage_root" json:"storage_root"`
	// Discard answers every C-STORE with success without writing anything.
	Discard bool `yaml:"discard" json:"discard"`

	MaxPDULength   uint32        `yaml:"max_pdu_length" json:"max_pdu_length"`
	DIMSETimeout   time.Duration `yaml:"dimse_timeout" json:"dimse_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	StrictCalledAE bool          `yaml:"strict_called_ae" json:"strict_called_ae"`
	// MaxInflatedSize caps, in bytes, a deflated data set once inflated.
	MaxInflatedSize int64 `yaml:"max_inflated_size" json:"max_inflated_size"`

	Compression negotiation.CompressionConfig `yaml:"compression" json:"compression"`

	MetricsAddress string  `yaml:"metrics_address" json:"metrics_address"`
	NATSURL        string  `yaml:"nats_url" json:"nats_url"`
	NATSSubject    string  `yaml:"nats_subject" json:"nats_subject"`
	SendRate       float64 `yaml:"send_rate" json:"send_rate"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AETitle:      "DICOMSTORE",
		Port:         11112,
		StorageRoot:  "dicom-store",
		MaxPDULength: types.DefaultMaxPDULength,
		DIMSETimeout: 60 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		NATSSubject:  events.DefaultSubject,
		LogLevel:     "info",
		LogFormat:    "text",

		MaxInflatedSize: dicom.DefaultMaxInflatedSize,
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// Address is the listen address of the SCP.
func (c *Config) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Marshal returns cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
