package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/danielhkuo/quickly-form/session"
)

const (
	DefaultAPIURL          = "http://localhost:8080/api/v1"
	DefaultAutosaveDelay   = 2 * time.Second
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultHTTPRetries     = 2
	DefaultPort            = 8080
	DefaultDatabaseURL     = "file:quickly-form.db"
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ClientConfig holds settings shared by every client subcommand.
type ClientConfig struct {
	APIURL        string
	SessionFile   string
	AutosaveDelay time.Duration
	HTTPTimeout   time.Duration
	HTTPRetries   int
	Verbose       bool
}

// NewClientFlagSet returns a flag set with the client flags registered.
// Callers add their own flags, call Parse, then ApplyEnv.
func NewClientFlagSet(name string) (*flag.FlagSet, *ClientConfig) {
	cfg := &ClientConfig{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.APIURL, "api", "", "API base URL")
	fs.StringVar(&cfg.SessionFile, "session", "", "Session file path")
	fs.DurationVar(&cfg.AutosaveDelay, "autosave", 0, "Autosave delay")
	fs.DurationVar(&cfg.HTTPTimeout, "timeout", 0, "HTTP request timeout")
	fs.IntVar(&cfg.HTTPRetries, "retries", -1, "Retries for GET requests")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")

	return fs, cfg
}

// ApplyEnv fills unset fields from the environment, then from defaults.
func (cfg *ClientConfig) ApplyEnv() error {
	if cfg.APIURL == "" {
		cfg.APIURL = os.Getenv("QF_API_URL")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	if cfg.SessionFile == "" {
		cfg.SessionFile = os.Getenv("QF_SESSION_FILE")
	}
	if cfg.SessionFile == "" {
		path, err := session.DefaultPath()
		if err != nil {
			return err
		}
		cfg.SessionFile = path
	}

	var err error
	if cfg.AutosaveDelay == 0 {
		if cfg.AutosaveDelay, err = durationEnv("QF_AUTOSAVE_DELAY", DefaultAutosaveDelay); err != nil {
			return err
		}
	}
	if cfg.HTTPTimeout == 0 {
		if cfg.HTTPTimeout, err = durationEnv("QF_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
			return err
		}
	}
	if cfg.HTTPRetries < 0 {
		if cfg.HTTPRetries, err = intEnv("QF_HTTP_RETRIES", DefaultHTTPRetries); err != nil {
			return err
		}
		if cfg.HTTPRetries < 0 {
			return errors.New("invalid QF_HTTP_RETRIES env variable")
		}
	}
	if cfg.AutosaveDelay < 0 {
		return errors.New("autosave delay must be positive")
	}
	return nil
}

// ParseClientFlags parses args for a subcommand that only takes the client
// flags and returns the remaining positional arguments.
func ParseClientFlags(name string, args []string) (ClientConfig, []string, error) {
	fs, cfg := NewClientFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return ClientConfig{}, nil, err
	}
	return *cfg, fs.Args(), nil
}

// EmulatorConfig configures the local backend.
type EmulatorConfig struct {
	Port            int
	DatabaseURL     string
	DatabaseType    string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Verbose         bool
}

// ParseEmulatorFlags validates flags and sets port number
func ParseEmulatorFlags(args []string) (EmulatorConfig, error) {
	var cfg EmulatorConfig

	fs := flag.NewFlagSet("emulator", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "JWT signing secret (prefer env)")

	fs.DurationVar(&cfg.AccessTokenTTL, "access-ttl", 0, "Access token lifetime")
	fs.DurationVar(&cfg.RefreshTokenTTL, "refresh-ttl", 0, "Refresh token lifetime")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return EmulatorConfig{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		port, err := intEnv("PORT", DefaultPort)
		if err != nil {
			return EmulatorConfig{}, err
		}
		cfg.Port = port
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDatabaseURL
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return EmulatorConfig{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	var err error
	if cfg.AccessTokenTTL == 0 {
		if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", DefaultAccessTokenTTL); err != nil {
			return EmulatorConfig{}, err
		}
	}
	if cfg.RefreshTokenTTL == 0 {
		if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL); err != nil {
			return EmulatorConfig{}, err
		}
	}

	// Secret - MUST be provided
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	}
	if cfg.JWTSecret == "" {
		return EmulatorConfig{}, errors.New("JWT_SECRET_KEY required")
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable", key)
	}
	return n, nil
}
