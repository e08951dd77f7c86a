package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultExchange       = "binance"
	DefaultSpotWsURL      = "wss://stream.binance.com:9443/ws/!ticker@arr"
	DefaultPerpetualWsURL = "wss://fstream.binance.com/ws/!ticker@arr"
	DefaultQuote          = "USDT"
)

// 各交易所的默认 ws 地址：{spot, perpetual}
var defaultWsURLs = map[string][2]string{
	"binance": {DefaultSpotWsURL, DefaultPerpetualWsURL},
	"bybit":   {"wss://stream.bybit.com/v5/public/spot", "wss://stream.bybit.com/v5/public/linear"},
}

// exchanges without a whole-market ticker stream need symbols.list
var needsSymbolList = map[string]bool{"bybit": true}

type Config struct {
	App struct {
		TopK       int `toml:"top_k"`
		ThrottleMs int `toml:"throttle_ms"`
	} `toml:"app"`

	Symbols struct {
		Quote string   `toml:"quote"` // 只保留以该计价币结尾的交易对
		List  []string `toml:"list"`  // 例: ["BTC", "ETHUSDT"]；binance 忽略
	} `toml:"symbols"`

	Feed struct {
		Exchange            string `toml:"exchange"`
		SpotWsURL           string `toml:"spot_ws_url"`
		PerpetualWsURL      string `toml:"perpetual_ws_url"`
		ReconnectDelayMs    int    `toml:"reconnect_delay_ms"`
		ReconnectMaxDelayMs int    `toml:"reconnect_max_delay_ms"`
	} `toml:"feed"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
		TTLSec   int    `toml:"ttl_sec"`
	} `toml:"redis"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`
}

// Load 读取 toml 配置；文件不存在时直接使用默认值
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.App.TopK <= 0 {
		cfg.App.TopK = 10
	}
	if cfg.App.ThrottleMs <= 0 {
		cfg.App.ThrottleMs = 200
	}
	if strings.TrimSpace(cfg.Symbols.Quote) == "" {
		cfg.Symbols.Quote = DefaultQuote
	}
	cfg.Symbols.Quote = strings.ToUpper(strings.TrimSpace(cfg.Symbols.Quote))

	if strings.TrimSpace(cfg.Feed.Exchange) == "" {
		cfg.Feed.Exchange = DefaultExchange
	}
	cfg.Feed.Exchange = strings.ToLower(strings.TrimSpace(cfg.Feed.Exchange))
	if urls, ok := defaultWsURLs[cfg.Feed.Exchange]; ok {
		if strings.TrimSpace(cfg.Feed.SpotWsURL) == "" {
			cfg.Feed.SpotWsURL = urls[0]
		}
		if strings.TrimSpace(cfg.Feed.PerpetualWsURL) == "" {
			cfg.Feed.PerpetualWsURL = urls[1]
		}
	}
	list := cfg.Symbols.List[:0]
	for _, s := range cfg.Symbols.List {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			list = append(list, s)
		}
	}
	cfg.Symbols.List = list
	if cfg.Feed.ReconnectDelayMs <= 0 {
		cfg.Feed.ReconnectDelayMs = 5000
	}
	// 未配置上限时退化为固定间隔重连
	if cfg.Feed.ReconnectMaxDelayMs < cfg.Feed.ReconnectDelayMs {
		cfg.Feed.ReconnectMaxDelayMs = cfg.Feed.ReconnectDelayMs
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "xspread"
	}
	if cfg.Redis.TTLSec <= 0 {
		cfg.Redis.TTLSec = 60
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/xspread.db"
	}
}

func validate(cfg *Config) error {
	if cfg.App.TopK > 100 {
		return errors.New("app.top_k must be <= 100")
	}
	if cfg.Feed.SpotWsURL == "" || cfg.Feed.PerpetualWsURL == "" {
		return fmt.Errorf("feed %q: spot_ws_url and perpetual_ws_url required", cfg.Feed.Exchange)
	}
	if needsSymbolList[cfg.Feed.Exchange] && len(cfg.Symbols.List) == 0 {
		return fmt.Errorf("feed %q has no whole-market stream, symbols.list required", cfg.Feed.Exchange)
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	return nil
}
