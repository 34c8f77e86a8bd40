package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
// It is loaded once at start-up and passed by value to the components.
type Config struct {
	Server struct {
		Addr string
		// Env is "production" or anything else; production hides internal error details.
		Env            string
		AllowedOrigins []string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret string
		// TokenTTL of zero issues tokens without an exp claim.
		TokenTTL   time.Duration
		BcryptCost int
		// LoginRate limits /api/auth/login and /api/auth/register requests per second; 0 disables.
		LoginRate int
	}
	Upload struct {
		Dir         string
		MaxFileSize int64
		MaxPages    int
	}
	Storage struct {
		// Driver selects where uploads land: "local" (Upload.Dir) or "s3".
		Driver    string
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Admin struct {
		Name     string
		Email    string
		Password string
	}
	Log struct {
		Level string
	}
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Server.Env), "production")
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("COMICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.allowedorigins", []string{"http://localhost:3000"})
	v.SetDefault("database.path", "data/comics.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", 7*24*time.Hour)
	v.SetDefault("auth.bcryptcost", 12)
	v.SetDefault("auth.loginrate", 10)
	v.SetDefault("upload.dir", "public/uploads")
	v.SetDefault("upload.maxfilesize", 5*1024*1024)
	v.SetDefault("upload.maxpages", 20)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "comics")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("admin.name", "Admin")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitOrigins(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth jwt secret is required")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth token ttl must not be negative")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload max file size must be positive")
	}
	if c.Upload.MaxPages <= 0 {
		return fmt.Errorf("upload max pages must be positive")
	}
	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
