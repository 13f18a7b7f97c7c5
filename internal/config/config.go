// Package config loads the server configuration from a file and RESTIFY_ environment
// variables.
package config

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jeremywhuff/restify/executor"
	"github.com/jeremywhuff/restify/schema"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "RESTIFY"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Query    QueryConfig    `mapstructure:"query"`
	Files    FilesConfig    `mapstructure:"files"`
	Log      LogConfig      `mapstructure:"log"`
	Language string         `mapstructure:"language"`
	Modules  []string       `mapstructure:"modules"` // Installed modules
	Entities []EntityConfig `mapstructure:"entities"`
}

type ServerConfig struct {
	Addr       string  `mapstructure:"addr"`
	CORSOrigin string  `mapstructure:"cors_origin"`
	RateLimit  float64 `mapstructure:"rate_limit"` // Requests per second, 0 disables
	Burst      int     `mapstructure:"burst"`
	Metrics    bool    `mapstructure:"metrics"`
}

type StoreConfig struct {
	// Driver is memory, sqlite, postgres, mysql or mongo.
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Database string `mapstructure:"database"` // Mongo only
	Fixtures string `mapstructure:"fixtures"` // JSON seed file, memory only
}

// QueryConfig holds option defaults shared by every entity.
type QueryConfig struct {
	PageSize       int    `mapstructure:"page_size"`
	DateFormat     string `mapstructure:"date_format"`
	Timezone       string `mapstructure:"timezone"`
	StrictDates    bool   `mapstructure:"strict_dates"`
	SubstringMatch bool   `mapstructure:"substring_match"`
	CountTotal     bool   `mapstructure:"count_total"`
}

type FilesConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Expiry          time.Duration `mapstructure:"expiry"`
}

type LogConfig struct {
	Stages bool `mapstructure:"stages"` // Print the stage table for every request
}

// EntityConfig binds one entity to a route group.
type EntityConfig struct {
	Entity     string   `mapstructure:"entity"`
	Path       string   `mapstructure:"path"`
	Modules    []string `mapstructure:"modules"`
	Operations []string `mapstructure:"operations"`
	// Fields declares the entity for stores that cannot list their columns, such as
	// mongo. Entries are "FIELD" or "FIELD:type".
	Fields []string `mapstructure:"fields"`
	// Schema entries are "FIELD:type" overrides, such as "LOGOTIP:file".
	Schema  []string       `mapstructure:"schema"`
	Options map[string]any `mapstructure:"options"`
}

// Load reads path, when given, and then the environment. RESTIFY_SERVER_ADDR overrides
// server.addr.
func Load(path string) (*Config, error) {

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.burst", 20)
	v.SetDefault("server.metrics", true)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("query.page_size", 25)
	v.SetDefault("language", "en")
	v.SetDefault("log.stages", true)
}

func (c *Config) validate() error {

	seen := map[string]bool{}
	for i := range c.Entities {
		e := &c.Entities[i]
		if e.Entity == "" {
			return errors.Errorf("entities[%d]: entity is required", i)
		}
		if e.Path == "" {
			e.Path = "/" + strings.ToLower(e.Entity)
		}
		if !strings.HasPrefix(e.Path, "/") {
			e.Path = "/" + e.Path
		}
		if seen[e.Path] {
			return errors.Errorf("entities[%d]: path %s is already bound", i, e.Path)
		}
		seen[e.Path] = true

		if _, err := e.DeclaredFields(); err != nil {
			return errors.Wrapf(err, "entities[%d]", i)
		}
		if _, err := e.Variant(); err != nil {
			return errors.Wrapf(err, "entities[%d]", i)
		}
		if _, err := e.ExecutorOptions(); err != nil {
			return errors.Wrapf(err, "entities[%d]", i)
		}
	}
	return nil
}

// Variant builds the executor variant for the entity.
func (e EntityConfig) Variant() (executor.Variant, error) {

	v := executor.Variant{
		Entity:  e.Entity,
		Modules: e.Modules,
	}

	for _, name := range e.Operations {
		op, ok := executor.ParseOperation(name)
		if !ok {
			return v, errors.Errorf("unknown operation %q", name)
		}
		v.Operations = append(v.Operations, op)
	}

	type override struct{ name, tag string }
	var overrides []override
	for _, entry := range e.Schema {
		name, tag, ok := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return v, errors.Errorf("schema entry %q is not FIELD:type", entry)
		}
		overrides = append(overrides, override{name: strings.ToUpper(name), tag: tag})
	}
	if len(overrides) > 0 {
		v.Augment = func(s *schema.Schema) {
			for _, o := range overrides {
				s.SetType(o.name, o.tag)
			}
		}
	}
	return v, nil
}

// DeclaredFields parses Fields.
func (e EntityConfig) DeclaredFields() ([]schema.Field, error) {

	out := make([]schema.Field, 0, len(e.Fields))
	for _, entry := range e.Fields {
		name, tag, _ := strings.Cut(entry, ":")
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			return nil, errors.Errorf("field entry %q has no name", entry)
		}
		t, property := schema.ParseType(tag)
		out = append(out, schema.Field{Name: name, Type: t, Property: property})
	}
	return out, nil
}

// ExecutorOptions decodes the entity's option overrides.
func (e EntityConfig) ExecutorOptions() (executor.Options, error) {
	return executor.DecodeOptions(e.Options)
}

// ExecutorOptions are the shared query defaults as executor options.
func (q QueryConfig) ExecutorOptions(language string) executor.Options {
	return executor.Options{
		PageSize:       q.PageSize,
		DateFormat:     q.DateFormat,
		StrictDates:    q.StrictDates,
		SubstringMatch: q.SubstringMatch,
		CountTotal:     q.CountTotal,
		Language:       language,
	}
}

// Location is the query timezone, or UTC.
func (q QueryConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "timezone %s", q.Timezone)
	}
	return loc, nil
}
