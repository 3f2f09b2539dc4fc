// Package config loads the server and loader configuration from a TOML file,
// pre-processing it for $ENV_VAR substitution exactly as the teacher's
// config package does, and exposes the enumerated fields of spec 6.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/atlasdatatech/lost/lost"
)

// Config is the full set of spec 6 "Configuration (enumerated)" fields.
type Config struct {
	DBURL string `toml:"db_url"`

	MinCon int `toml:"min_con"`
	MaxCon int `toml:"max_con"`

	IP   string `toml:"ip"`
	Port int    `toml:"port"`

	ServerID string `toml:"server_id"`

	// Authoritative is the URI of a shape constraining this server's area;
	// empty disables the authority check (spec 4.5.2 step 2).
	Authoritative string `toml:"authoritative"`

	// Redirect, when true, makes non-leaf answers always redirects, even
	// under recursive=true (spec 4.5.2 step 5, server mode "redirect").
	Redirect bool `toml:"redirect"`

	GeoTable   string `toml:"geo_table"`
	CivicTable string `toml:"civic_table"`

	// RequestTimeoutSeconds bounds every blocking operation in the serving path:
	// pool acquisition, store round trips, and peer proxy calls (spec 5).
	// Exhausting it yields serverTimeout.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// envVarPattern matches a bare $NAME reference, mirroring the teacher's
// config.replaceEnvVars: only names starting with a letter or underscore are
// substituted, so "$32.78" is left untouched (config_internal_test.go).
var envVarPattern = regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`)

// replaceEnvVars substitutes every $NAME occurrence in r with the value of
// the matching environment variable (empty string if unset), returning a new
// reader over the substituted content.
func replaceEnvVars(r io.Reader) (io.Reader, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	out := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[1:])
		return []byte(os.Getenv(name))
	})

	return bytes.NewReader(out), nil
}

// applyDefaults fills in the spec 6 defaults for any field left at its zero
// value.
func applyDefaults(c *Config) {
	if c.IP == "" {
		c.IP = lost.DefaultIP
	}
	if c.Port == 0 {
		c.Port = lost.DefaultPort
	}
	if c.ServerID == "" {
		c.ServerID = lost.DefaultServerID
	}
	if c.MinCon == 0 {
		c.MinCon = lost.DefaultMinCon
	}
	if c.MaxCon == 0 {
		c.MaxCon = lost.DefaultMaxCon
	}
	if c.GeoTable == "" {
		c.GeoTable = lost.DefaultGeoTable
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
}

// Load reads and decodes the TOML config file at path, substituting
// environment variables first (teacher's pattern).
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	substituted, err := replaceEnvVars(f)
	if err != nil {
		return nil, err
	}

	var c Config
	if _, err := toml.DecodeReader(substituted, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	return &c, nil
}
