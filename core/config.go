package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	dbConfig struct {
		URL           string
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		MaxOpenConns  int
	}

	serverConfig struct {
		Host               string
		Address            string
		DebugHost          string
		FrontendOrigin     string
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
		BodyLimit          string
	}

	Config struct {
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string
		AppName  string

		SecretKey       string
		DefaultPassword string
		ManagerUsername string
		ManagerPassword string
		ManagerName     string

		DefaultFromEmail string
		SendgridApiKey   string
		RollbarToken     string

		CleanupSchedule  string
		GalleryMaxBytes  int64
		ActivityLogLimit int

		Database dbConfig
		Server   serverConfig
	}
)

func (c *dbConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DefaultFromAddress parses the configured sender, falling back to a bare address.
func (c *Config) DefaultFromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
	}
	return *addr
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default) and prefixes every variable: DEV_DATABASE_URL, PROD_SECRET_KEY...
// config/.env.<env> is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, env)

	return &Config{
		Env:      env,
		Build:    v.GetString("build"),
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("test_mode"),
		WorkDir:  wd,
		AppName:  v.GetString("app_name"),

		SecretKey:       v.GetString("secret_key"),
		DefaultPassword: v.GetString("default_password"),
		ManagerUsername: v.GetString("manager.username"),
		ManagerPassword: v.GetString("manager.password"),
		ManagerName:     v.GetString("manager.name"),

		DefaultFromEmail: v.GetString("default_from_email"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		RollbarToken:     v.GetString("rollbar_token"),

		CleanupSchedule:  v.GetString("cleanup.schedule"),
		GalleryMaxBytes:  v.GetInt64("gallery.max_bytes"),
		ActivityLogLimit: v.GetInt("activity.limit"),

		Database: dbConfig{
			URL:           v.GetString("database.url"),
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disable_tls"),
			MaxOpenConns:  v.GetInt("database.max_open_conns"),
		},
		Server: serverConfig{
			Host:               v.GetString("server.host"),
			Address:            serverAddress(v),
			DebugHost:          v.GetString("server.debug_host"),
			FrontendOrigin:     v.GetString("server.frontend_origin"),
			JWTExpirationDelta: v.GetDuration("server.jwt_expiration_delta"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			BodyLimit:          v.GetString("server.body_limit"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("app_name", "Gibi Gubae")
	v.SetDefault("secret_key", "gubae-dev-x7#q1!m9v$2pz&k4@w0r8)t6(n3^d5")
	v.SetDefault("default_password", "Gubae@1234")
	v.SetDefault("manager.username", "manager")
	v.SetDefault("manager.password", "")
	v.SetDefault("manager.name", "Manager")
	v.SetDefault("default_from_email", "Gibi Gubae <noreply@localhost>")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("cleanup.schedule", "0 3 * * *")
	v.SetDefault("gallery.max_bytes", 8<<20)
	v.SetDefault("activity.limit", 100)

	v.SetDefault("database.url", "")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "gubae")
	v.SetDefault("database.password", "gubae")
	v.SetDefault("database.admin_user", "")
	v.SetDefault("database.admin_password", "")
	v.SetDefault("database.name", "gubae")
	v.SetDefault("database.disable_tls", env == "DEV" || env == "TEST")
	v.SetDefault("database.max_open_conns", 20)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.debug_host", "localhost:4000")
	v.SetDefault("server.frontend_origin", "http://localhost:3000")
	v.SetDefault("server.jwt_expiration_delta", 24*time.Hour)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.body_limit", "10M")
}

// PORT is honoured unprefixed, the way most PaaS set it.
func serverAddress(v *viper.Viper) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return fmt.Sprintf(":%s", v.GetString("server.port"))
}
