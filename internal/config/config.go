// Package config loads govbot's configuration.
//
// Three layers, later wins: the defaults of the embedded CUE schema, an
// optional CUE file unified with the schema, and GOVBOT_* environment
// variables. The merged result is checked against the schema again, so an
// override can never produce a configuration the file could not.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/kv"
)

//go:embed schema.cue
var schemaSource []byte

// Schema returns the CUE schema configuration files are checked against.
func Schema() string {
	return string(schemaSource)
}

// Error codes.
const (
	ErrCodeRead   = "C001" // config file unreadable
	ErrCodeSyntax = "C002" // config file is not valid CUE
	ErrCodeSchema = "C003" // config violates the schema
	ErrCodeEnv    = "C004" // environment override malformed
	ErrCodeDecode = "C005" // value could not be decoded
)

// LoadError describes why a configuration was rejected.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func cueError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = cueerrors.Details(err, nil)
	}
	return le
}

// Storage selects and sizes the store.
type Storage struct {
	Backend   kv.Backend
	Path      string
	CacheSize int
}

// Sockets configures both services.
type Sockets struct {
	Query          string
	Notification   string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
}

// Config is the resolved configuration.
type Config struct {
	Storage            Storage
	Sockets            Sockets
	Index              index.Plan
	RefreshInterval    time.Duration
	CompactionInterval time.Duration
	LoginURL           string
	MetricsAddr        string
	LogLevel           string
}

// document mirrors #Config field for field.
type document struct {
	Storage struct {
		Backend   string `json:"backend"`
		Path      string `json:"path"`
		CacheSize int    `json:"cache_size"`
	} `json:"storage"`
	Sockets struct {
		Query          string `json:"query"`
		Notification   string `json:"notification"`
		ReadTimeout    string `json:"read_timeout"`
		WriteTimeout   string `json:"write_timeout"`
		MaxRequestSize int64  `json:"max_request_size"`
	} `json:"sockets"`
	Index              index.Plan `json:"index"`
	RefreshInterval    string     `json:"refresh_interval"`
	CompactionInterval string     `json:"compaction_interval"`
	LoginURL           string     `json:"login_url"`
	MetricsAddr        string     `json:"metrics_addr"`
	LogLevel           string     `json:"log_level"`
}

// Default returns the schema defaults.
func Default() (*Config, error) {
	return Load("", func(string) string { return "" })
}

// Load resolves the configuration from the CUE file at path (skipped when
// empty) and the environment read through getenv (os.Getenv when nil).
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueError(ErrCodeSyntax, err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeRead, Message: err.Error()}
		}
		file := ctx.CompileBytes(src, cue.Filename(path))
		if err := file.Err(); err != nil {
			return nil, cueError(ErrCodeSyntax, err)
		}
		value = def.Unify(file)
	}

	doc, err := decode(value)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(doc, getenv); err != nil {
		return nil, err
	}

	// Overrides replace values instead of unifying with them, so the merged
	// document is checked as a whole.
	if _, err := decode(def.Unify(ctx.Encode(doc))); err != nil {
		return nil, err
	}
	return doc.resolve()
}

func decode(v cue.Value) (*document, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}
	var doc document
	if err := v.Decode(&doc); err != nil {
		return nil, cueError(ErrCodeDecode, err)
	}
	return &doc, nil
}

func (d *document) resolve() (*Config, error) {
	var errs []error
	duration := func(field, s string) time.Duration {
		v, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return v
	}

	cfg := &Config{
		Storage: Storage{
			Backend:   kv.Backend(d.Storage.Backend),
			Path:      d.Storage.Path,
			CacheSize: d.Storage.CacheSize,
		},
		Sockets: Sockets{
			Query:          d.Sockets.Query,
			Notification:   d.Sockets.Notification,
			ReadTimeout:    duration("sockets.read_timeout", d.Sockets.ReadTimeout),
			WriteTimeout:   duration("sockets.write_timeout", d.Sockets.WriteTimeout),
			MaxRequestSize: d.Sockets.MaxRequestSize,
		},
		Index:              d.Index,
		RefreshInterval:    duration("refresh_interval", d.RefreshInterval),
		CompactionInterval: duration("compaction_interval", d.CompactionInterval),
		LoginURL:           d.LoginURL,
		MetricsAddr:        d.MetricsAddr,
		LogLevel:           d.LogLevel,
	}
	if err := cfg.Index.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("index: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
	}
	return cfg, nil
}
