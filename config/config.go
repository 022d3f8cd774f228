package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Mission  MissionConfig  `mapstructure:"mission"`
	Reading  ReadingConfig  `mapstructure:"reading"`
	Checkin  CheckinConfig  `mapstructure:"checkin"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty = any address may reach /api/admin
	// Timezone names the IANA location that defines "today" for missions and check-ins.
	Timezone string `mapstructure:"timezone"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins permitted by CORS and the SSE stream.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MissionConfig struct {
	CatalogTTL   time.Duration `mapstructure:"catalog_ttl"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	LockWait     time.Duration `mapstructure:"lock_wait"`
	SeedDefaults bool          `mapstructure:"seed_defaults"`
}

type ReadingConfig struct {
	// CountPaidUnlocks lets key/karma unlocks performed today count toward reading missions.
	CountPaidUnlocks bool          `mapstructure:"count_paid_unlocks"`
	UnlockSweep      time.Duration `mapstructure:"unlock_sweep"`
}

type CheckinConfig struct {
	Rewards []int `mapstructure:"rewards"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // stdout | otlp
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads config from the given YAML file path. Values from a .env file in
// the working directory and KFW_* environment variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KFW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.timezone", "Local")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/kongfuworld.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("mission.catalog_ttl", "5m")
	v.SetDefault("mission.lock_ttl", "10s")
	v.SetDefault("mission.lock_wait", "3s")
	v.SetDefault("mission.seed_defaults", true)
	v.SetDefault("reading.count_paid_unlocks", true)
	v.SetDefault("reading.unlock_sweep", "1m")
	v.SetDefault("checkin.rewards", []int{3, 3, 3, 5, 3, 3, 6})
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "kongfuworld-missions")
	v.SetDefault("tracing.sample_ratio", 1.0)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Server.Timezone. An empty name or "Local" yields time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" || c.Server.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Server.Timezone)
}
