package server

import (
	"encoding/json"
	stderrors "errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"todoapi/internal/auth"
	"todoapi/internal/domain/errors"
	"todoapi/internal/logger"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Config struct {
	Addr        string
	Port        int
	DBStr       string
	MigratePath string
	Store       string
	SQLitePath  string

	JWTSecret string
	TokenTTL  time.Duration

	RedisURL    string
	Environment string
	Version     string

	CORSAllowedOrigins []string

	Log logger.Config
}

const (
	defaultAddr        = "0.0.0.0"
	defaultPort        = 8080
	defaultDBStr       = "postgresql://todos:todos@db:5432/todos?sslmode=disable"
	defaultMigratePath = "migrations"
	defaultSQLitePath  = "todos.db"
	defaultJWTSecret   = "change-me-in-production"
	defaultEnvironment = "development"
	defaultVersion     = "1.0.0"
	defaultEnvFile     = ".env"
)

var defaultCORSOrigins = []string{"http://localhost:3001", "http://localhost:5173"}

func DefaultConfig() *Config {
	return &Config{
		Addr:               defaultAddr,
		Port:               defaultPort,
		DBStr:              defaultDBStr,
		MigratePath:        defaultMigratePath,
		Store:              StorePostgres,
		SQLitePath:         defaultSQLitePath,
		JWTSecret:          defaultJWTSecret,
		TokenTTL:           auth.DefaultTokenTTL,
		Environment:        defaultEnvironment,
		Version:            defaultVersion,
		CORSAllowedOrigins: append([]string(nil), defaultCORSOrigins...),
		Log:                logger.DefaultConfig(),
	}
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// fileConfig mirrors Config for the JSON file. Absent keys keep earlier values.
type fileConfig struct {
	Addr               *string  `json:"addr"`
	Port               *int     `json:"port"`
	DBStr              *string  `json:"db_str"`
	MigratePath        *string  `json:"migrate_path"`
	Store              *string  `json:"store"`
	SQLitePath         *string  `json:"sqlite_path"`
	JWTSecret          *string  `json:"jwt_secret"`
	TokenTTL           *string  `json:"token_ttl"`
	RedisURL           *string  `json:"redis_url"`
	Environment        *string  `json:"environment"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins"`
	LogLevel           *string  `json:"log_level"`
	LogFormat          *string  `json:"log_format"`
	LogOutput          *string  `json:"log_output"`
	LogFile            *string  `json:"log_file"`
}

type flagValues struct {
	addr        string
	port        int
	dbstr       string
	dbdsn       string
	migratePath string
	store       string
	sqlitePath  string
	configFile  string
	envFile     string
}

func newFlagSet(v *flagValues) *flag.FlagSet {
	fset := flag.NewFlagSet("todos", flag.ContinueOnError)
	fset.StringVar(&v.addr, "addr", defaultAddr, "server bind address")
	fset.IntVar(&v.port, "port", defaultPort, "server port")
	fset.StringVar(&v.dbstr, "dbstr", defaultDBStr, "database connection string")
	fset.StringVar(&v.dbdsn, "dbdsn", "", "database DSN (takes precedence over -dbstr)")
	fset.StringVar(&v.migratePath, "migratepath", defaultMigratePath, "path to the migrations directory")
	fset.StringVar(&v.store, "store", StorePostgres, "storage backend: postgres, sqlite or memory")
	fset.StringVar(&v.sqlitePath, "sqlite", defaultSQLitePath, "sqlite database file")
	fset.StringVar(&v.configFile, "c", "", "path to a JSON config file")
	fset.StringVar(&v.envFile, "env", defaultEnvFile, "path to a .env file")
	return fset
}

// ReadConfig loads the configuration for the process command line.
func ReadConfig() (*Config, error) {
	return LoadConfig(os.Args[1:])
}

// LoadConfig resolves defaults, then the JSON file, then the .env file, then
// the environment, then flags that were set explicitly on args.
func LoadConfig(args []string) (*Config, error) {
	var fv flagValues
	fset := newFlagSet(&fv)
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	explicit := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := DefaultConfig()

	configPath := fv.configFile
	if configPath == "" {
		configPath = os.Getenv("CONFIG")
	}
	if configPath != "" {
		if err := applyJSONConfig(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(fv.envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load env file", "path", fv.envFile, "error", err)
	}

	applyEnvOverrides(cfg)
	applyFlagOverrides(cfg, fv, explicit)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == defaultJWTSecret && cfg.Environment == "production" {
		logger.Warn("JWT_SECRET is not set; using the development default")
	}
	return cfg, nil
}

func applyJSONConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w %s: %v", errors.ErrConfigFileReadFailed, path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigParseFailed, err)
	}

	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.DBStr, fc.DBStr)
	setString(&cfg.MigratePath, fc.MigratePath)
	setString(&cfg.Store, fc.Store)
	setString(&cfg.SQLitePath, fc.SQLitePath)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.Environment, fc.Environment)
	setString(&cfg.Log.Level, fc.LogLevel)
	setString(&cfg.Log.Format, fc.LogFormat)
	setString(&cfg.Log.Output, fc.LogOutput)
	setString(&cfg.Log.FilePath, fc.LogFile)
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.TokenTTL != nil {
		ttl, err := time.ParseDuration(*fc.TokenTTL)
		if err != nil {
			return fmt.Errorf("%w: token_ttl: %v", errors.ErrConfigInvalidFormat, err)
		}
		cfg.TokenTTL = ttl
	}
	if fc.CORSAllowedOrigins != nil {
		cfg.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}

	logger.Info("loaded JSON config", "path", path)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func applyEnvOverrides(cfg *Config) {
	envString(&cfg.Addr, "ADDR")
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err != nil {
			logger.Warn("ignoring PORT", "error", errors.ErrConfigInvalidFormat, "value", port)
		} else if p < 1 || p > 65535 {
			logger.Warn("ignoring PORT: must be between 1 and 65535", "value", p)
		} else {
			cfg.Port = p
		}
	}
	envString(&cfg.DBStr, "DB_STR")
	envString(&cfg.MigratePath, "MIGRATE_PATH")
	envString(&cfg.Store, "STORE")
	envString(&cfg.SQLitePath, "SQLITE_PATH")
	envString(&cfg.JWTSecret, "JWT_SECRET")
	envString(&cfg.RedisURL, "REDIS_URL")
	envString(&cfg.Environment, "ENVIRONMENT")
	envString(&cfg.Log.Level, "LOG_LEVEL")
	envString(&cfg.Log.Format, "LOG_FORMAT")
	envString(&cfg.Log.Output, "LOG_OUTPUT")
	envString(&cfg.Log.FilePath, "LOG_FILE")

	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err != nil {
			logger.Warn("ignoring TOKEN_TTL", "error", errors.ErrConfigInvalidFormat, "value", ttl)
		} else {
			cfg.TokenTTL = d
		}
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}

	if cfg.DBStr == defaultDBStr {
		dbUser := os.Getenv("DB_USER")
		dbPassword := os.Getenv("DB_PASSWORD")
		dbName := os.Getenv("DB_NAME")
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		if dbUser != "" && dbPassword != "" && dbName != "" && dbHost != "" && dbPort != "" {
			cfg.DBStr = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, dbName)
		}
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyFlagOverrides(cfg *Config, fv flagValues, explicit map[string]bool) {
	if explicit["addr"] {
		cfg.Addr = fv.addr
	}
	if explicit["port"] {
		cfg.Port = fv.port
	}
	if explicit["migratepath"] {
		cfg.MigratePath = fv.migratePath
	}
	if explicit["store"] {
		cfg.Store = fv.store
	}
	if explicit["sqlite"] {
		cfg.SQLitePath = fv.sqlitePath
	}
	switch {
	case fv.dbdsn != "":
		cfg.DBStr = fv.dbdsn
	case explicit["dbstr"]:
		cfg.DBStr = fv.dbstr
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store %q", errors.ErrConfigInvalidFormat, c.Store)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", errors.ErrConfigInvalidFormat, c.Port)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", errors.ErrConfigInvalidFormat)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: empty jwt secret", errors.ErrConfigInvalidFormat)
	}
	return nil
}
