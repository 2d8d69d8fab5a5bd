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
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		DisableReqLogs            bool
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ShutdownTimeout           time.Duration
		RateLimit                 float64 // requests per second per client; 0 disables
		RateBurst                 int
		AuthRateLimit             float64 // login & password reset endpoints
		AuthRateBurst             int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Address  string // empty disables the cache
		Password string
		DB       int
	}

	// GameConfig holds the tunable rules of the reward economy.
	GameConfig struct {
		TeacherDailyXPBudget int
		MarketFeePercent     int
		ListingTTL           time.Duration
		MinTradeLevel        int
		MaxListingsPerDay    int
		MinTrustScore        int
		MaxPinnedBadges      int
	}

	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		DefaultFromEmail          string
		FrontendBaseURL           string
		WorkDir                   string
		RollbarToken              string
		SendgridApiKey            string
		Timezone                  string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Game     GameConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c Config) DefaultFromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// Location returns the timezone used for calendar day boundaries.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "EduRPG")
	conf.SetDefault("secretKey", "u8k4-qz)rmn$+21=pf&eiw9x(b!v)#*d7(#lc3^$ahrt5wqe")
	conf.SetDefault("defaultFromEmail", "EduRPG <noreply@localhost>")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("timezone", "UTC")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.disableReqLogs", false)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.rateLimit", 20.0)
	conf.SetDefault("server.rateBurst", 40)
	conf.SetDefault("server.authRateLimit", 1.0)
	conf.SetDefault("server.authRateBurst", 5)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "edurpg")
	conf.SetDefault("database.user", "edurpg")
	conf.SetDefault("database.password", "edurpg")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("redis.address", "")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)

	conf.SetDefault("game.teacherDailyXPBudget", 1000)
	conf.SetDefault("game.marketFeePercent", 5)
	conf.SetDefault("game.listingTTL", 30*24*time.Hour)
	conf.SetDefault("game.minTradeLevel", 5)
	conf.SetDefault("game.maxListingsPerDay", 50)
	conf.SetDefault("game.minTrustScore", 20)
	conf.SetDefault("game.maxPinnedBadges", 3)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("server.disableReqLogs", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     conf.GetString("build"),
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		AppName:                   conf.GetString("appName"),
		SecretKey:                 conf.GetString("secretKey"),
		DefaultFromEmail:          conf.GetString("defaultFromEmail"),
		FrontendBaseURL:           conf.GetString("frontendBaseURL"),
		WorkDir:                   workDir,
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridApiKey:            conf.GetString("sendgridApiKey"),
		Timezone:                  conf.GetString("timezone"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Address:                   conf.GetString("server.address"),
			Host:                      conf.GetString("server.host"),
			DebugHost:                 conf.GetString("server.debugHost"),
			DisableReqLogs:            conf.GetBool("server.disableReqLogs"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			RateLimit:                 conf.GetFloat64("server.rateLimit"),
			RateBurst:                 conf.GetInt("server.rateBurst"),
			AuthRateLimit:             conf.GetFloat64("server.authRateLimit"),
			AuthRateBurst:             conf.GetInt("server.authRateBurst"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:  conf.GetString("redis.address"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
		},
		Game: GameConfig{
			TeacherDailyXPBudget: conf.GetInt("game.teacherDailyXPBudget"),
			MarketFeePercent:     conf.GetInt("game.marketFeePercent"),
			ListingTTL:           conf.GetDuration("game.listingTTL"),
			MinTradeLevel:        conf.GetInt("game.minTradeLevel"),
			MaxListingsPerDay:    conf.GetInt("game.maxListingsPerDay"),
			MinTrustScore:        conf.GetInt("game.minTrustScore"),
			MaxPinnedBadges:      conf.GetInt("game.maxPinnedBadges"),
		},
	}
}

// NewTestConfig returns the configuration used by tests, independent of the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "EduRPG",
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          "EduRPG <noreply@localhost>",
		FrontendBaseURL:           "http://localhost:3000",
		Timezone:                  "UTC",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			DisableReqLogs:            true,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Game: GameConfig{
			TeacherDailyXPBudget: 1000,
			MarketFeePercent:     5,
			ListingTTL:           30 * 24 * time.Hour,
			MinTradeLevel:        5,
			MaxListingsPerDay:    50,
			MinTrustScore:        20,
			MaxPinnedBadges:      3,
		},
	}
}

// Getwd finds the project root: the closest parent directory holding a go.mod.
// go-test changes the working directory to the package being tested, so the root is searched upwards.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

func (c Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s debug=%t", c.AppName, c.Build, c.Env, c.Debug)
}
