package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Printer  PrinterConfig
	Driver   DriverConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Name  string
	Env   string
	Port  string
	Debug bool
}

type DatabaseConfig struct {
	// Driver selects the store: "postgres" or "memory" (dev/demo mode).
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Timezone string
}

type PrinterConfig struct {
	// Type selects the transport: "network" or "simulated".
	Type     string
	Address  string
	DeviceID string
}

type DriverConfig struct {
	CommandTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	ReconnectEvery time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables: %v", err)
	}

	// Set defaults
	viper.SetDefault("APP_NAME", "fiscal-pos-api")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_DEBUG", true)
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_NAME", "fiscalpos")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_SSL_MODE", "disable")
	viper.SetDefault("DB_TIMEZONE", "UTC")
	viper.SetDefault("PRINTER_TYPE", "simulated")
	viper.SetDefault("PRINTER_ADDRESS", "192.168.1.50:9100")
	viper.SetDefault("PRINTER_DEVICE_ID", "printer-1")
	viper.SetDefault("DRIVER_COMMAND_TIMEOUT_MS", 3000)
	viper.SetDefault("DRIVER_MAX_ATTEMPTS", 4)
	viper.SetDefault("DRIVER_BACKOFF_BASE_MS", 100)
	viper.SetDefault("DRIVER_BACKOFF_CAP_MS", 2000)
	viper.SetDefault("DRIVER_RECONNECT_EVERY_MS", 250)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("CORS_ALLOWED_HEADERS", []string{})

	return &Config{
		App: AppConfig{
			Name:  viper.GetString("APP_NAME"),
			Env:   viper.GetString("APP_ENV"),
			Port:  viper.GetString("APP_PORT"),
			Debug: viper.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Driver:   viper.GetString("DB_DRIVER"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			SSLMode:  viper.GetString("DB_SSL_MODE"),
			Timezone: viper.GetString("DB_TIMEZONE"),
		},
		Printer: PrinterConfig{
			Type:     viper.GetString("PRINTER_TYPE"),
			Address:  viper.GetString("PRINTER_ADDRESS"),
			DeviceID: viper.GetString("PRINTER_DEVICE_ID"),
		},
		Driver: DriverConfig{
			CommandTimeout: time.Duration(viper.GetInt("DRIVER_COMMAND_TIMEOUT_MS")) * time.Millisecond,
			MaxAttempts:    viper.GetInt("DRIVER_MAX_ATTEMPTS"),
			BackoffBase:    time.Duration(viper.GetInt("DRIVER_BACKOFF_BASE_MS")) * time.Millisecond,
			BackoffCap:     time.Duration(viper.GetInt("DRIVER_BACKOFF_CAP_MS")) * time.Millisecond,
			ReconnectEvery: time.Duration(viper.GetInt("DRIVER_RECONNECT_EVERY_MS")) * time.Millisecond,
		},
		CORS: CORSConfig{
			AllowedOrigins: viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders: viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
		},
	}
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode +
		" TimeZone=" + c.Timezone
}
