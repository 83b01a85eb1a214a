package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail string
		FrontendBaseURL  string

		Server    ServerConfig
		Database  DatabaseConfig
		TempAdmin TempAdminConfig
	}

	ServerConfig struct {
		Host               string
		Port               int
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		SessionCookieName  string
		SignInPath         string
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	TempAdminConfig struct {
		// CleanupToken is the shared secret expected by the cleanup endpoint. Empty disables the endpoint.
		CleanupToken string
		// CleanupSchedule is a cron spec for the in-process sweep. Empty disables it.
		CleanupSchedule       string
		OpTimeout             time.Duration
		ReadRetries           int
		SweepConcurrency      int
		CleanupRateLimit      float64 // requests per second, per client IP
		CleanupBurst          int
		EnforcePasswordPolicy bool
	}
)

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d DatabaseConfig) InMemory() bool {
	return d.Engine == "memory"
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Shule")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "l2@6m!w&k#9zq0c)r1ax+v*8hs4e(b_y-5ptu7%ngdjf3io")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "127.0.0.1:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("server.sessionCookieName", "shule_session")
	v.SetDefault("server.signInPath", "/sign-in")
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "shule")
	v.SetDefault("database.user", "shule")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTls", false)
	v.SetDefault("database.maxOpenConns", 10)

	v.SetDefault("tempAdmin.cleanupToken", "")
	v.SetDefault("tempAdmin.cleanupSchedule", "")
	v.SetDefault("tempAdmin.opTimeout", 5*time.Second)
	v.SetDefault("tempAdmin.readRetries", 2)
	v.SetDefault("tempAdmin.sweepConcurrency", 4)
	v.SetDefault("tempAdmin.cleanupRateLimit", 1.0)
	v.SetDefault("tempAdmin.cleanupBurst", 5)
	v.SetDefault("tempAdmin.enforcePasswordPolicy", true)
}

// NewConfig loads the app configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with SHULE_ and nested keys use underscores, e.g. SHULE_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix("shule")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v, env)
}

func fromViper(v *viper.Viper, env string) *Config {
	return &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Port:               v.GetInt("server.port"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			SessionCookieName:  v.GetString("server.sessionCookieName"),
			SignInPath:         v.GetString("server.signInPath"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTls"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		TempAdmin: TempAdminConfig{
			CleanupToken:          v.GetString("tempAdmin.cleanupToken"),
			CleanupSchedule:       v.GetString("tempAdmin.cleanupSchedule"),
			OpTimeout:             v.GetDuration("tempAdmin.opTimeout"),
			ReadRetries:           v.GetInt("tempAdmin.readRetries"),
			SweepConcurrency:      v.GetInt("tempAdmin.sweepConcurrency"),
			CleanupRateLimit:      v.GetFloat64("tempAdmin.cleanupRateLimit"),
			CleanupBurst:          v.GetInt("tempAdmin.cleanupBurst"),
			EnforcePasswordPolicy: v.GetBool("tempAdmin.enforcePasswordPolicy"),
		},
	}
}

// NewTestConfig returns the default configuration in test mode, without reading the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("testMode", true)
	v.Set("debug", false)
	v.Set("secretKey", "test-secret")
	v.Set("server.disableReqLogs", true)
	v.Set("database.engine", "memory")
	v.Set("tempAdmin.cleanupToken", "cleanup-secret")
	v.Set("tempAdmin.readRetries", 0)
	return fromViper(v, "TEST")
}
