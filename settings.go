package dbv

import (
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings describes how to reach a database.
//
//	dialect: postgres
//	host: localhost
//	port: 5432
//	database: cars
//	user: app
//	password: secret
//	params:
//	  sslmode: require
//	max_open_conns: 10
//	conn_max_lifetime: 5m
type Settings struct {
	Dialect  string            `yaml:"dialect"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Params   map[string]string `yaml:"params"`
	// DSN, when set, is used as is.
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// Tracing opens connections through OpenTelemetry instrumentation.
	Tracing bool `yaml:"tracing"`
}

// LoadSettings reads settings from a YAML file, then applies DBV_*
// environment overrides.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	b, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrap(err, "dbv: read settings")
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, errors.Wrapf(err, "dbv: parse settings %s", path)
	}
	s.ApplyEnv()
	return s, nil
}

// LoadEnv loads the given .env files into the process environment, skipping
// those that do not exist. Variables already set are not overwritten.
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return errors.Wrap(godotenv.Load(existing...), "dbv: load env")
}

// SettingsFromEnv returns settings made only of DBV_* variables.
func SettingsFromEnv() Settings {
	var s Settings
	s.ApplyEnv()
	return s
}

// ApplyEnv overrides fields with DBV_DIALECT, DBV_HOST, DBV_PORT,
// DBV_DATABASE, DBV_USER, DBV_PASSWORD, DBV_DSN and DBV_TRACING when set.
func (s *Settings) ApplyEnv() {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("DBV_DIALECT", &s.Dialect)
	str("DBV_HOST", &s.Host)
	str("DBV_DATABASE", &s.Database)
	str("DBV_USER", &s.User)
	str("DBV_PASSWORD", &s.Password)
	str("DBV_DSN", &s.DSN)
	if v, ok := os.LookupEnv("DBV_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			s.Port = p
		}
	}
	if v, ok := os.LookupEnv("DBV_TRACING"); ok {
		if t, err := strconv.ParseBool(v); err == nil {
			s.Tracing = t
		}
	}
}

// DataSourceName returns the driver DSN for the settings' dialect.
func (s Settings) DataSourceName() (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	def, err := DefinitionFor(s.Dialect)
	if err != nil {
		return "", err
	}
	switch def.Name() {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(orDefault(s.Host, "localhost"), strconv.Itoa(portOrDefault(s.Port, 3306)))
		cfg.User = s.User
		cfg.Passwd = s.Password
		cfg.DBName = s.Database
		cfg.ParseTime = true
		if len(s.Params) > 0 {
			cfg.Params = make(map[string]string, len(s.Params))
			for k, v := range s.Params {
				cfg.Params[k] = v
			}
		}
		return cfg.FormatDSN(), nil
	case "postgres":
		q := url.Values{}
		for k, v := range s.Params {
			q.Set(k, v)
		}
		if q.Get("sslmode") == "" {
			q.Set("sslmode", "disable")
		}
		u := url.URL{
			Scheme:   "postgres",
			Host:     net.JoinHostPort(orDefault(s.Host, "localhost"), strconv.Itoa(portOrDefault(s.Port, 5432))),
			Path:     "/" + s.Database,
			RawQuery: q.Encode(),
		}
		if s.User != "" {
			u.User = url.UserPassword(s.User, s.Password)
		}
		return u.String(), nil
	case "sqlite":
		path := orDefault(s.Database, ":memory:")
		params := []string{"_pragma=foreign_keys(1)"}
		keys := make([]string, 0, len(s.Params))
		for k := range s.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(s.Params[k]))
		}
		return "file:" + path + "?" + strings.Join(params, "&"), nil
	}
	return "", errors.Errorf("dbv: %s needs an explicit dsn", def.Name())
}

func (s Settings) inMemory() bool {
	d, err := DefinitionFor(s.Dialect)
	if err != nil || d.Name() != "sqlite" {
		return false
	}
	return s.Database == "" || s.Database == ":memory:" || strings.Contains(s.DSN, ":memory:")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func portOrDefault(p, def int) int {
	if p == 0 {
		return def
	}
	return p
}
