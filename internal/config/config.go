package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Addr        string `mapstructure:"addr"`
	Port        string `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`

	// TrustProxy keys clients on the first X-Forwarded-For hop. Enable only
	// behind a proxy that overwrites the header.
	TrustProxy bool `mapstructure:"trust_proxy"`

	DBDriver   string `mapstructure:"db_driver"`
	DBDSN      string `mapstructure:"db_dsn"`
	DBDialect  string `mapstructure:"db_dialect"`
	DBMigrate  bool   `mapstructure:"db_migrate"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`

	DB        DBTLSConfig     `mapstructure:"db"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Audit     AuditConfig     `mapstructure:"audit"`
	TLS       TLSConfig       `mapstructure:"tls"`
}

type DBTLSConfig struct {
	SSLMode     string `mapstructure:"sslmode"`
	SSLRootCert string `mapstructure:"sslrootcert"`
	SSLCert     string `mapstructure:"sslcert"`
	SSLKey      string `mapstructure:"sslkey"`
}

type AdminConfig struct {
	Password      string        `mapstructure:"password"`
	PasswordHash  string        `mapstructure:"password_hash"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	FailureDelay  time.Duration `mapstructure:"failure_delay"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AuditConfig struct {
	LogFile string `mapstructure:"log_file"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Load reads an optional .env file into the process environment and then
// resolves the configuration. Variables already set win over the file.
func Load(dotenvPaths ...string) Config {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, p := range dotenvPaths {
		_ = godotenv.Load(p) // missing files are fine
	}
	return LoadFromEnv()
}

func LoadFromEnv() Config {
	v := viper.New()
	v.SetEnvPrefix("FAIRRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":5000")
	v.SetDefault("port", "")
	v.SetDefault("frontend_url", "http://localhost:5173")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("db_driver", "")
	v.SetDefault("db_dsn", "")
	v.SetDefault("db_dialect", "")
	v.SetDefault("db_migrate", true)
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "")
	v.SetDefault("db_name", "")
	v.SetDefault("db_user", "")
	v.SetDefault("db_password", "")
	v.SetDefault("db.sslmode", "")
	v.SetDefault("db.sslrootcert", "")
	v.SetDefault("db.sslcert", "")
	v.SetDefault("db.sslkey", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.session_ttl", 24*time.Hour)
	v.SetDefault("admin.failure_delay", time.Second)
	v.SetDefault("admin.sweep_interval", time.Hour)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "fairrate:throttle")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout", 10*time.Second)
	v.SetDefault("audit.log_file", "")
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fairrate/")

	_ = v.ReadInConfig() // ignore if not found

	// Unprefixed names kept for deployments that predate the FAIRRATE_ prefix.
	_ = v.BindEnv("port", "FAIRRATE_PORT", "PORT")
	_ = v.BindEnv("frontend_url", "FAIRRATE_FRONTEND_URL", "FRONTEND_URL")
	_ = v.BindEnv("admin.password", "FAIRRATE_ADMIN_PASSWORD", "ADMIN_PASSWORD")
	_ = v.BindEnv("openai.api_key", "FAIRRATE_OPENAI_API_KEY", "OPENAI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Printf("Warning: failed to unmarshal config: %v\n", err)
	}

	if p := strings.TrimSpace(cfg.Port); p != "" && os.Getenv("FAIRRATE_ADDR") == "" && !v.InConfig("addr") {
		cfg.Addr = ":" + p
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if cfg.DBDialect == "" {
		cfg.DBDialect = dialectForDriver(cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = buildDSNFromParts(cfg)
	}
	return cfg
}

func dialectForDriver(driver string) string {
	switch driver {
	case "pgx", "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return driver
	}
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "FAIRRATE_ADDR must not be empty")
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		problems = append(problems, "database connection is not configured; set FAIRRATE_DB_DSN or FAIRRATE_DB_HOST/FAIRRATE_DB_PORT/FAIRRATE_DB_NAME/FAIRRATE_DB_USER/FAIRRATE_DB_PASSWORD")
	}
	if c.DBDSN != "" && c.DBDriver == "" {
		problems = append(problems, "FAIRRATE_DB_DRIVER is required when FAIRRATE_DB_DSN is set")
	}
	if c.DBDSN == "" && hasAnyDBParts(c) && !hasAllDBParts(c) {
		problems = append(problems, "incomplete split DB config; set all of FAIRRATE_DB_HOST/FAIRRATE_DB_PORT/FAIRRATE_DB_NAME/FAIRRATE_DB_USER/FAIRRATE_DB_PASSWORD")
	}
	if c.DBDriver != "" {
		switch c.DBDriver {
		case "pgx", "sqlite", "mysql":
		default:
			problems = append(problems, "FAIRRATE_DB_DRIVER must be one of: pgx, sqlite, mysql")
		}
		switch c.DBDialect {
		case "postgres", "sqlite", "mysql":
		default:
			problems = append(problems, "FAIRRATE_DB_DIALECT must be one of: postgres, sqlite, mysql")
		}
	}
	if strings.TrimSpace(c.Admin.Password) == "" && strings.TrimSpace(c.Admin.PasswordHash) == "" {
		problems = append(problems, "admin auth is not configured; set FAIRRATE_ADMIN_PASSWORD or FAIRRATE_ADMIN_PASSWORD_HASH")
	}
	if h := strings.TrimSpace(c.Admin.PasswordHash); h != "" {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			problems = append(problems, "FAIRRATE_ADMIN_PASSWORD_HASH is not a bcrypt hash")
		}
	}
	if c.Admin.SessionTTL <= 0 {
		problems = append(problems, "FAIRRATE_ADMIN_SESSION_TTL must be positive")
	}
	if c.Admin.FailureDelay < 0 {
		problems = append(problems, "FAIRRATE_ADMIN_FAILURE_DELAY must not be negative")
	}
	if c.Admin.SweepInterval <= 0 {
		problems = append(problems, "FAIRRATE_ADMIN_SWEEP_INTERVAL must be positive")
	}
	if c.RateLimit.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.RateLimit.Backend)) {
		case "memory":
		case "redis":
			if strings.TrimSpace(c.Redis.Addr) == "" {
				problems = append(problems, "FAIRRATE_REDIS_ADDR is required when FAIRRATE_RATE_LIMIT_BACKEND=redis")
			}
		default:
			problems = append(problems, "FAIRRATE_RATE_LIMIT_BACKEND must be one of: memory, redis")
		}
	}
	if strings.TrimSpace(c.OpenAI.APIKey) != "" {
		if c.OpenAI.Timeout <= 0 {
			problems = append(problems, "FAIRRATE_OPENAI_TIMEOUT must be positive")
		}
		if u, err := url.Parse(c.OpenAI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "FAIRRATE_OPENAI_BASE_URL must be an absolute URL")
		}
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CertFile) == "" {
		problems = append(problems, "FAIRRATE_TLS_CERT_FILE is required when FAIRRATE_TLS_ENABLED=true")
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.KeyFile) == "" {
		problems = append(problems, "FAIRRATE_TLS_KEY_FILE is required when FAIRRATE_TLS_ENABLED=true")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

type StartupSummary struct {
	RepositoryMode string
	ThrottleMode   string
	AdminAuth      string
	AIEnabled      bool
	AIModel        string
	AuditFile      bool
	TLSEnabled     bool
	TrustProxy     bool
	FrontendURL    string
}

func (c Config) Summary() StartupSummary {
	mode := "memory"
	if c.DBDriver != "" && c.DBDSN != "" {
		mode = "sql:" + c.DBDialect
	}
	throttle := "disabled"
	if c.RateLimit.Enabled {
		throttle = strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
	}
	adminAuth := "password"
	if strings.TrimSpace(c.Admin.PasswordHash) != "" {
		adminAuth = "bcrypt"
	}
	return StartupSummary{
		RepositoryMode: mode,
		ThrottleMode:   throttle,
		AdminAuth:      adminAuth,
		AIEnabled:      strings.TrimSpace(c.OpenAI.APIKey) != "",
		AIModel:        c.OpenAI.Model,
		AuditFile:      strings.TrimSpace(c.Audit.LogFile) != "",
		TLSEnabled:     c.TLS.Enabled,
		TrustProxy:     c.TrustProxy,
		FrontendURL:    c.FrontendURL,
	}
}

func hasAnyDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" ||
		strings.TrimSpace(c.DBPort) != "" ||
		strings.TrimSpace(c.DBName) != "" ||
		strings.TrimSpace(c.DBUser) != "" ||
		strings.TrimSpace(c.DBPassword) != ""
}

func hasAllDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" &&
		strings.TrimSpace(c.DBPort) != "" &&
		strings.TrimSpace(c.DBName) != "" &&
		strings.TrimSpace(c.DBUser) != "" &&
		strings.TrimSpace(c.DBPassword) != ""
}

// buildDSNFromParts assembles a postgres URL for pgx or a go-sql-driver DSN
// for mysql. Other drivers need an explicit DSN.
func buildDSNFromParts(c Config) string {
	if !hasAllDBParts(c) {
		return ""
	}
	port := strings.TrimSpace(c.DBPort)
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	if c.DBDialect == "mysql" {
		mc := mysql.NewConfig()
		mc.User = c.DBUser
		mc.Passwd = c.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.DBHost, port)
		mc.DBName = c.DBName
		mc.ParseTime = true
		return mc.FormatDSN()
	}
	if c.DBDialect != "postgres" {
		return ""
	}
	sslMode := strings.TrimSpace(c.DB.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, port),
		Path:   "/" + url.PathEscape(c.DBName),
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}
