package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
	StoreSQLite = "sqlite"
)

// SetupNotice is shown while wallet signing is not configured.
const SetupNotice = "Missing XAMAN_API_KEY. Add it to the environment (or .env) and restart."

// OfferDefaults fill the terms a lender leaves out of a new offer.
type OfferDefaults struct {
	CurrencyCode  string
	CreditAmount  string
	CollateralXRP string
	RepayXRP      string
	DueMinutes    int64
	GraceMinutes  int64
}

type Config struct {
	AppPort     string
	StoreDriver string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempTTLSecs int
	SessionTTL   time.Duration

	XRPLWSURL   string
	XRPLNetwork string

	XamanAPIKey    string
	XamanAPISecret string
	XamanBaseURL   string

	PublicBaseURL string

	LogLevel string
	LogFile  string

	Defaults OfferDefaults
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("STORE_DRIVER", StoreRedis)

	v.SetDefault("MYSQL_HOST", "mysql")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_DB", "trustline")
	v.SetDefault("MYSQL_USER", "trustline")
	v.SetDefault("MYSQL_PASS", "trustline")
	v.SetDefault("SQLITE_PATH", "trustline-credit.db")

	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("IDEMPOTENCY_TTL_SECONDS", 300)
	v.SetDefault("SESSION_TTL", "24h")

	v.SetDefault("XRPL_WS_URL", "wss://s.altnet.rippletest.net:51233")
	v.SetDefault("XRPL_NETWORK", "TESTNET")
	v.SetDefault("XAMAN_API_KEY", "")
	v.SetDefault("XAMAN_API_SECRET", "")
	v.SetDefault("XAMAN_BASE_URL", "https://xumm.app")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("DEFAULT_CURRENCY", "CRD")
	v.SetDefault("DEFAULT_CREDIT_AMOUNT", "100")
	v.SetDefault("DEFAULT_COLLATERAL_XRP", "5")
	v.SetDefault("DEFAULT_REPAY_XRP", "5.2")
	v.SetDefault("DEFAULT_DUE_MINUTES", 10)
	v.SetDefault("DEFAULT_GRACE_MINUTES", 10)
}

// Load reads the environment, with an optional .env file in the working directory
// underneath it.
func Load() *Config { return LoadFile(".env") }

// LoadFile is Load with an explicit env file. A missing file is not an error.
func LoadFile(path string) *Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	return &Config{
		AppPort:     v.GetString("APP_PORT"),
		StoreDriver: v.GetString("STORE_DRIVER"),

		MySQLHost: v.GetString("MYSQL_HOST"),
		MySQLPort: v.GetString("MYSQL_PORT"),
		MySQLDB:   v.GetString("MYSQL_DB"),
		MySQLUser: v.GetString("MYSQL_USER"),
		MySQLPass: v.GetString("MYSQL_PASS"),

		SQLitePath: v.GetString("SQLITE_PATH"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		IdempTTLSecs: v.GetInt("IDEMPOTENCY_TTL_SECONDS"),
		SessionTTL:   v.GetDuration("SESSION_TTL"),

		XRPLWSURL:   v.GetString("XRPL_WS_URL"),
		XRPLNetwork: v.GetString("XRPL_NETWORK"),

		XamanAPIKey:    v.GetString("XAMAN_API_KEY"),
		XamanAPISecret: v.GetString("XAMAN_API_SECRET"),
		XamanBaseURL:   v.GetString("XAMAN_BASE_URL"),

		PublicBaseURL: v.GetString("PUBLIC_BASE_URL"),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),

		Defaults: OfferDefaults{
			CurrencyCode:  v.GetString("DEFAULT_CURRENCY"),
			CreditAmount:  v.GetString("DEFAULT_CREDIT_AMOUNT"),
			CollateralXRP: v.GetString("DEFAULT_COLLATERAL_XRP"),
			RepayXRP:      v.GetString("DEFAULT_REPAY_XRP"),
			DueMinutes:    v.GetInt64("DEFAULT_DUE_MINUTES"),
			GraceMinutes:  v.GetInt64("DEFAULT_GRACE_MINUTES"),
		},
	}
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if _, err := net.LookupPort("tcp", c.AppPort); err != nil {
		return fmt.Errorf("invalid APP_PORT %q: %w", c.AppPort, err)
	}
	if c.RedisAddr == "" {
		return errors.New("missing REDIS_ADDR")
	}

	switch c.StoreDriver {
	case StoreRedis:
	case StoreMySQL:
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if err := checkURL("XRPL_WS_URL", c.XRPLWSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("PUBLIC_BASE_URL", c.PublicBaseURL, "http", "https"); err != nil {
		return err
	}
	if c.SigningEnabled() {
		if err := checkURL("XAMAN_BASE_URL", c.XamanBaseURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Defaults.DueMinutes <= 0 || c.Defaults.GraceMinutes <= 0 {
		return errors.New("DEFAULT_DUE_MINUTES and DEFAULT_GRACE_MINUTES must be positive")
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid %s %q", key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid %s scheme %q", key, u.Scheme)
}

// SigningEnabled reports whether wallet signing credentials are present. Without
// them the service still serves reads and loan records.
func (c *Config) SigningEnabled() bool { return c.XamanAPIKey != "" }

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// StoreDSN is the gorm DSN for the configured relational driver.
func (c *Config) StoreDSN() string {
	if c.StoreDriver == StoreSQLite {
		return c.SQLitePath
	}
	return c.MySQLDSN()
}
