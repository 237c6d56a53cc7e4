package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/rewardledger/internal/events/natsbus"
	"github.com/nkiryanov/rewardledger/internal/logger"
	"github.com/nkiryanov/rewardledger/internal/models"
	"github.com/nkiryanov/rewardledger/internal/service/withdrawal"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultNatsPrefix   = natsbus.DefaultPrefix
	defaultFlowTTL      = withdrawal.DefaultFlowTTL
)

var (
	defaultReferralBonus = models.Units(10)
	defaultDailyBonus    = models.Units(25)
	defaultMinWithdrawal = models.Units(150)
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address the HTTP API listens on
	ListenAddr string

	// Postgres for the audit journal; journal is off when empty
	DatabaseDSN string

	// Secret key to sign access tokens
	SecretKey string

	// Environment
	Environment string

	// Telegram bot is off when the token is empty
	TelegramToken    string
	TelegramChannels []string
	BotUsername      string // falls back to the name Telegram reports

	AdminIDs []string

	// Event bus is off when the url is empty
	NatsURL    string
	NatsPrefix string

	RedeemCodes []models.RedeemCode

	ReferralBonus models.Amount
	DailyBonus    models.Amount
	MinWithdrawal models.Amount
	FlowTTL       time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		NatsPrefix:    defaultNatsPrefix,
		ReferralBonus: defaultReferralBonus,
		DailyBonus:    defaultDailyBonus,
		MinWithdrawal: defaultMinWithdrawal,
		FlowTTL:       defaultFlowTTL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// LoadEnv sets options from non empty variables
func (c *Config) LoadEnv(getenv func(string) string) error {
	setString := func(o *string) func(string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setList := func(o *[]string) func(string) error {
		return func(value string) error {
			*o = splitList(value)
			return nil
		}
	}
	setValue := func(v pflag.Value) func(string) error {
		return v.Set
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"TELEGRAM_TOKEN":    setString(&c.TelegramToken),
		"TELEGRAM_CHANNELS": setList(&c.TelegramChannels),
		"BOT_USERNAME":      setString(&c.BotUsername),
		"ADMIN_IDS":         setList(&c.AdminIDs),
		"NATS_URL":          setString(&c.NatsURL),
		"NATS_PREFIX":       setString(&c.NatsPrefix),
		"REDEEM_CODES":      setValue((*codesValue)(&c.RedeemCodes)),
		"REFERRAL_BONUS":    setValue((*amountValue)(&c.ReferralBonus)),
		"DAILY_BONUS":       setValue((*amountValue)(&c.DailyBonus)),
		"MIN_WITHDRAWAL":    setValue((*amountValue)(&c.MinWithdrawal)),
		"FLOW_TTL":          setValue((*durationValue)(&c.FlowTTL)),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("rewardledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVarP(&c.TelegramToken, "telegram-token", "t", c.TelegramToken, "Telegram bot token")
	fs.StringSliceVar(&c.TelegramChannels, "telegram-channels", c.TelegramChannels, "Channels users must join")
	fs.StringVar(&c.BotUsername, "bot-username", c.BotUsername, "Bot username for referral links")
	fs.StringSliceVar(&c.AdminIDs, "admin-ids", c.AdminIDs, "Admin account ids")
	fs.StringVarP(&c.NatsURL, "nats", "n", c.NatsURL, "NATS server url")
	fs.StringVar(&c.NatsPrefix, "nats-prefix", c.NatsPrefix, "NATS subject prefix")
	fs.Var((*codesValue)(&c.RedeemCodes), "redeem-codes", "Seed redeem codes as CODE=amount,...")
	fs.Var((*amountValue)(&c.ReferralBonus), "referral-bonus", "Amount credited per referral")
	fs.Var((*amountValue)(&c.DailyBonus), "daily-bonus", "Daily bonus amount")
	fs.Var((*amountValue)(&c.MinWithdrawal), "min-withdrawal", "Minimum balance to withdraw")
	fs.DurationVar(&c.FlowTTL, "flow-ttl", c.FlowTTL, "Idle withdrawal flow lifetime")

	return fs.Parse(args)
}

// Validate checks options that have no usable default
func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.ReferralBonus <= 0 || c.DailyBonus <= 0 || c.MinWithdrawal <= 0 {
		errs = append(errs, errors.New("bonus and minimum withdrawal amounts must be positive"))
	}
	if c.FlowTTL <= 0 {
		errs = append(errs, errors.New("flow ttl must be positive"))
	}
	if c.NatsURL != "" && c.NatsPrefix == "" {
		errs = append(errs, errors.New("nats prefix is required with nats url"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// amountValue reads decimal rupees like "150" or "12.50"
type amountValue models.Amount

func (v *amountValue) String() string { return models.Amount(*v).String() }
func (v *amountValue) Type() string   { return "amount" }

func (v *amountValue) Set(s string) error {
	a, err := models.ParseAmount(s)
	if err != nil {
		return err
	}
	*v = amountValue(a)
	return nil
}

type durationValue time.Duration

func (v *durationValue) String() string { return time.Duration(*v).String() }
func (v *durationValue) Type() string   { return "duration" }

func (v *durationValue) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*v = durationValue(d)
	return nil
}

// codesValue reads "CODE=amount" pairs separated by commas
type codesValue []models.RedeemCode

func (v *codesValue) Type() string { return "codes" }

func (v *codesValue) String() string {
	// Never print the codes themselves
	return fmt.Sprintf("%d codes", len(*v))
}

func (v *codesValue) Set(s string) error {
	var codes []models.RedeemCode
	for i, pair := range splitList(s) {
		code, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(code) == "" {
			return fmt.Errorf("redeem code #%d is not CODE=amount", i+1)
		}

		amount, err := models.ParseAmount(value)
		if err != nil {
			return fmt.Errorf("redeem code #%d: %w", i+1, err)
		}
		codes = append(codes, models.RedeemCode{Code: strings.TrimSpace(code), Value: amount})
	}

	*v = codes
	return nil
}
