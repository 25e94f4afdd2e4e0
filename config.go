package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Configuration defaults.
const (
	defaultSymbol        = "122630"
	defaultK             = 0.6
	defaultBudget        = 1_000_000
	defaultTickSec       = 5
	defaultStateFilepath = "state_lw_strategy.json"
)

// Config is the configuration struct for the service.
type Config struct {
	// Symbol is the traded symbol.
	Symbol string
	// K is the breakout multiplier.
	K float64
	// Budget is the cash ceiling for buy sizing.
	Budget int
	// TickSec is the strategy evaluation period in seconds.
	TickSec int
	// Paper toggles the simulated order gateway.
	Paper bool
	// StateFilepath is the filepath of the persisted trading state.
	StateFilepath string
	// BrokerBaseURL is the brokerage REST endpoint.
	BrokerBaseURL string
	// BrokerAppKey is the issued brokerage application key.
	BrokerAppKey string
	// BrokerAppSecret is the issued brokerage application secret.
	BrokerAppSecret string
	// BrokerAccessToken is the issued brokerage OAuth access token.
	BrokerAccessToken string
	// BrokerAccount is the brokerage cash account number.
	BrokerAccount string
	// FillFeedURL is the brokerage execution notice websocket endpoint.
	FillFeedURL string
	// FillFeedApprovalKey is the issued websocket approval key.
	FillFeedApprovalKey string
	// SMTPHost is the notification smtp host.
	SMTPHost string
	// SMTPPort is the notification smtp port.
	SMTPPort int
	// SMTPUser is the notification smtp user and sender address.
	SMTPUser string
	// SMTPPass is the notification smtp app password.
	SMTPPass string
	// EmailTo is the set of notification recipients.
	EmailTo []string
	// JournalEndpoint is the trade journal database endpoint.
	JournalEndpoint string
	// JournalUser is the trade journal database user.
	JournalUser string
	// JournalPass is the trade journal database user pass.
	JournalPass string
	// Holidays is an optional set of exchange holiday day keys (yyyymmdd).
	Holidays []string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("no symbol provided for trader service"))
	}
	if cfg.K <= 0 || cfg.K > 1.5 {
		errs = errors.Join(errs, fmt.Errorf("breakout multiplier %v out of range (0, 1.5]", cfg.K))
	}
	if cfg.Budget <= 0 {
		errs = errors.Join(errs, fmt.Errorf("budget must be positive, got %d", cfg.Budget))
	}
	if cfg.TickSec <= 0 {
		errs = errors.Join(errs, fmt.Errorf("tick period must be positive, got %d", cfg.TickSec))
	}
	if cfg.BrokerAppKey == "" || cfg.BrokerAppSecret == "" || cfg.BrokerAccessToken == "" {
		errs = errors.Join(errs, fmt.Errorf("brokerage credentials cannot be empty strings"))
	}
	if cfg.BrokerAccount == "" {
		errs = errors.Join(errs, fmt.Errorf("brokerage account cannot be an empty string"))
	}
	if !cfg.Paper && cfg.FillFeedURL == "" {
		errs = errors.Join(errs, fmt.Errorf("fill feed url cannot be an empty string for live trading"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"symbol", &cfg.Symbol, "the traded symbol"},
		{"k", &cfg.K, "the breakout multiplier"},
		{"budget", &cfg.Budget, "the cash ceiling for buy sizing"},
		{"ticksec", &cfg.TickSec, "the strategy evaluation period in seconds"},
		{"paper", &cfg.Paper, "the paper trading flag"},
		{"statefilepath", &cfg.StateFilepath, "the trading state filepath"},
		{"brokerbaseurl", &cfg.BrokerBaseURL, "the brokerage rest endpoint"},
		{"brokerappkey", &cfg.BrokerAppKey, "the brokerage application key"},
		{"brokerappsecret", &cfg.BrokerAppSecret, "the brokerage application secret"},
		{"brokeraccesstoken", &cfg.BrokerAccessToken, "the brokerage access token"},
		{"brokeraccount", &cfg.BrokerAccount, "the brokerage cash account number"},
		{"fillfeedurl", &cfg.FillFeedURL, "the execution notice websocket endpoint"},
		{"fillfeedapprovalkey", &cfg.FillFeedApprovalKey, "the websocket approval key"},
		{"smtphost", &cfg.SMTPHost, "the notification smtp host"},
		{"smtpport", &cfg.SMTPPort, "the notification smtp port"},
		{"smtpuser", &cfg.SMTPUser, "the notification smtp user"},
		{"smtppass", &cfg.SMTPPass, "the notification smtp app password"},
		{"emailto", &cfg.EmailTo, "the notification recipients"},
		{"journalendpoint", &cfg.JournalEndpoint, "the trade journal database endpoint"},
		{"journaluser", &cfg.JournalUser, "the trade journal database user"},
		{"journalpass", &cfg.JournalPass, "the trade journal database user pass"},
		{"holidays", &cfg.Holidays, "the exchange holiday day keys (yyyymmdd)"},
	}

	for idx := range flags {
		err = cfg.registerFlag(flags[idx].name, flags[idx].value, flags[idx].usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.Symbol == "" {
		cfg.Symbol = defaultSymbol
	}
	if cfg.K == 0 {
		cfg.K = defaultK
	}
	if cfg.Budget == 0 {
		cfg.Budget = defaultBudget
	}
	if cfg.TickSec == 0 {
		cfg.TickSec = defaultTickSec
	}
	if cfg.StateFilepath == "" {
		cfg.StateFilepath = defaultStateFilepath
	}

	return cfg.Validate()
}
