package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Database struct {
		URL         string        `mapstructure:"url"`
		MaxConns    int           `mapstructure:"max_conns"`
		PingTimeout time.Duration `mapstructure:"ping_timeout"`
		TxTimeout   time.Duration `mapstructure:"tx_timeout"`
	} `mapstructure:"database"`
	Log struct {
		Level    string `mapstructure:"level"`
		Encoding string `mapstructure:"encoding"`
	} `mapstructure:"log"`
	Security struct {
		FairnessSecret     string `mapstructure:"fairness_secret"`
		FairnessSecretFile string `mapstructure:"fairness_secret_file"`
		InternalToken      string `mapstructure:"internal_token"`
		InternalTokenFile  string `mapstructure:"internal_token_file"`
		JWTPublicKeyFile   string `mapstructure:"jwt_public_key_file"`
		JWTIssuer          string `mapstructure:"jwt_issuer"`
		CallbackSecret     string `mapstructure:"callback_secret"`
	} `mapstructure:"security"`
	Exchange struct {
		FeeRate string `mapstructure:"fee_rate"`
	} `mapstructure:"exchange"`
	Withdrawal struct {
		ManualSLA      time.Duration `mapstructure:"manual_sla"`
		BacklogWarning time.Duration `mapstructure:"backlog_warning"`
	} `mapstructure:"withdrawal"`
	Currency struct {
		ProviderURL string        `mapstructure:"provider_url"`
		APIKey      string        `mapstructure:"api_key"`
		TTL         time.Duration `mapstructure:"ttl"`
	} `mapstructure:"currency"`
	Telegram struct {
		BotToken       string `mapstructure:"bot_token"`
		OperatorChatID int64  `mapstructure:"operator_chat_id"`
	} `mapstructure:"telegram"`
	CORS struct {
		AllowOrigins []string `mapstructure:"allow_origins"`
	} `mapstructure:"cors"`
	Debug struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
	} `mapstructure:"debug"`

	feeRate decimal.Decimal
}

func (c Config) isDevelopment() bool {
	return strings.EqualFold(c.App.Env, "development")
}

func loadConfig() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOOTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "LOOTBOX_DATABASE_URL", "DATABASE_URL")

	v.SetDefault("app.env", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.ping_timeout", "3s")
	v.SetDefault("database.tx_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("security.fairness_secret", "")
	v.SetDefault("security.fairness_secret_file", "")
	v.SetDefault("security.internal_token", "")
	v.SetDefault("security.internal_token_file", "")
	v.SetDefault("security.jwt_public_key_file", "")
	v.SetDefault("security.jwt_issuer", "")
	v.SetDefault("security.callback_secret", "")
	v.SetDefault("exchange.fee_rate", "0.05")
	v.SetDefault("withdrawal.manual_sla", "72h")
	v.SetDefault("withdrawal.backlog_warning", "48h")
	v.SetDefault("currency.provider_url", "")
	v.SetDefault("currency.api_key", "")
	v.SetDefault("currency.ttl", "1h")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.operator_chat_id", 0)
	v.SetDefault("cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("debug.pprof_enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return Config{}, fmt.Errorf("read config file failed: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config failed: %w", err)
	}

	if err := readSecretFile(&cfg.Security.FairnessSecret, cfg.Security.FairnessSecretFile, "security.fairness_secret_file"); err != nil {
		return Config{}, err
	}
	if err := readSecretFile(&cfg.Security.InternalToken, cfg.Security.InternalTokenFile, "security.internal_token_file"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readSecretFile fills target from path when target is still empty.
func readSecretFile(target *string, path, key string) error {
	path = strings.TrimSpace(path)
	if strings.TrimSpace(*target) != "" || path == "" {
		return nil
	}
	// #nosec G304 -- path is provided by operator config.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s failed: %w", key, err)
	}
	*target = strings.TrimSpace(string(raw))
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url is required")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be greater than 0")
	}
	if c.Database.PingTimeout <= 0 {
		return errors.New("database.ping_timeout must be greater than 0")
	}
	if c.Database.TxTimeout <= 0 {
		return errors.New("database.tx_timeout must be greater than 0")
	}
	if strings.TrimSpace(c.Security.FairnessSecret) == "" {
		return errors.New("security.fairness_secret is required")
	}
	if !c.isDevelopment() && strings.TrimSpace(c.Security.CallbackSecret) == "" {
		return errors.New("security.callback_secret is required outside development")
	}

	feeRate, err := decimal.NewFromString(strings.TrimSpace(c.Exchange.FeeRate))
	if err != nil {
		return fmt.Errorf("exchange.fee_rate is not a decimal: %w", err)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.New("exchange.fee_rate must be in [0, 1)")
	}
	c.feeRate = feeRate

	if c.Withdrawal.ManualSLA <= 0 {
		return errors.New("withdrawal.manual_sla must be greater than 0")
	}
	if c.Withdrawal.BacklogWarning <= 0 {
		return errors.New("withdrawal.backlog_warning must be greater than 0")
	}
	if c.Currency.TTL <= 0 {
		return errors.New("currency.ttl must be greater than 0")
	}

	if len(c.CORS.AllowOrigins) == 0 {
		return errors.New("cors.allow_origins must not be empty")
	}
	for _, origin := range c.CORS.AllowOrigins {
		if strings.TrimSpace(origin) == "*" {
			return errors.New("cors.allow_origins must not contain wildcard *")
		}
	}
	return nil
}
