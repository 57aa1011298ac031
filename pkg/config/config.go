package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Ingest struct {
		SourceLogPath string   `mapstructure:"SOURCE_LOG_PATH"`
		SourceTag     string   `mapstructure:"SOURCE_TAG"`
		BotNames      []string `mapstructure:"BOT_NAMES"`
	} `mapstructure:"INGEST"`
	Abuse struct {
		MaxPerMinute       int           `mapstructure:"MAX_PER_MINUTE"`
		MaxPerHour         int           `mapstructure:"MAX_PER_HOUR"`
		MaxDepositsPerHour int           `mapstructure:"MAX_DEPOSITS_PER_HOUR"`
		DuplicateWindow    time.Duration `mapstructure:"DUPLICATE_WINDOW"`
		MinDepositGap      time.Duration `mapstructure:"MIN_DEPOSIT_GAP"`
		RecurringAmount    float64       `mapstructure:"RECURRING_AMOUNT"`
		MaxQuantity        int64         `mapstructure:"MAX_QUANTITY"`
		HighValueAmount    float64       `mapstructure:"HIGH_VALUE_AMOUNT"`
		SpecialAmount      float64       `mapstructure:"SPECIAL_AMOUNT"`
	} `mapstructure:"ABUSE"`
	Evaluation struct {
		Cron string `mapstructure:"CRON"`
	} `mapstructure:"EVALUATION"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config file", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}
