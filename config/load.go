package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trade-executor-go/infrastructure/logger"
	"trade-executor-go/order"
	"trade-executor-go/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Broker    BrokerConfig    `yaml:"broker"`
	Store     StoreConfig     `yaml:"store"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Orders    OrdersConfig    `yaml:"orders"`
	Execution ExecutionConfig `yaml:"execution"`
	Log       logger.Config   `yaml:"log"`
}

type BrokerConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	StreamURL string        `yaml:"streamURL"`
	APIKey    string        `yaml:"apiKey"`
	APISecret string        `yaml:"apiSecret"`
	Timeout   time.Duration `yaml:"timeout"`
	DryRun    bool          `yaml:"dryRun"`
}

type StoreConfig struct {
	// Driver 取 postgres 或 memory。memory 仅供本地与测试。
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SizingConfig 仓位算法参数，全部可热更新。
type SizingConfig struct {
	MinProbability  float64 `yaml:"minProbability"`  // 低于该概率的信号直接丢弃
	StrengthFloor   float64 `yaml:"strengthFloor"`   // 概率→强度映射起点
	StrengthSpan    float64 `yaml:"strengthSpan"`    // 概率→强度映射跨度
	TargetDailyVol  float64 `yaml:"targetDailyVol"`  // 组合目标日波动
	FeeBps          float64 `yaml:"feeBps"`          // 手续费（基点）
	SlipBpsBase     float64 `yaml:"slipBpsBase"`     // 基础滑点（基点）
	CryptoCap       float64 `yaml:"cryptoCap"`       // 加密货币 sleeve 权重上限
	MaxPositionSize float64 `yaml:"maxPositionSize"` // 单标的权重上限
	SignalThreshold float64 `yaml:"signalThreshold"` // 低确信度减半的阈值
}

type OrdersConfig struct {
	DollarStep     float64 `yaml:"dollarStep"`     // 每标的基础下单金额
	MaxPositionPct float64 `yaml:"maxPositionPct"` // 名义金额占净值上限
}

type ExecutionConfig struct {
	SignalLimit   int           `yaml:"signalLimit"`   // 每次拉取的最大信号行数
	EquityUSD     float64       `yaml:"equityUSD"`     // 账户净值兜底值
	CycleInterval time.Duration `yaml:"cycleInterval"` // 决策周期长度
	MetricsAddr   string        `yaml:"metricsAddr"`   // prometheus 暴露地址
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("TE_BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("TE_BROKER_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("TE_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	return cfg, Validate(cfg)
}

// DefaultSizing 生产档位的缺省参数。
func DefaultSizing() SizingConfig {
	return SizingConfig{
		MinProbability:  0.6,
		StrengthFloor:   0.5,
		StrengthSpan:    0.2,
		TargetDailyVol:  0.01,
		FeeBps:          1,
		SlipBpsBase:     3,
		CryptoCap:       0.05,
		MaxPositionSize: 0.15,
		SignalThreshold: 0.6,
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Broker.Timeout <= 0 {
		cfg.Broker.Timeout = 10 * time.Second
	}
	if cfg.Sizing == (SizingConfig{}) {
		cfg.Sizing = DefaultSizing()
	}
	if cfg.Orders.DollarStep <= 0 {
		cfg.Orders.DollarStep = 1000
	}
	if cfg.Orders.MaxPositionPct <= 0 {
		cfg.Orders.MaxPositionPct = 0.15
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "postgres"
	}
	if cfg.Execution.SignalLimit <= 0 {
		cfg.Execution.SignalLimit = 300
	}
	if cfg.Execution.CycleInterval <= 0 {
		cfg.Execution.CycleInterval = 15 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if !cfg.Broker.DryRun {
		if cfg.Broker.BaseURL == "" {
			return errors.New("broker.baseURL is required")
		}
		if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
			return errors.New("broker.apiKey/apiSecret is required (or env overrides)")
		}
	}
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver (or TE_DB_DSN)")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
	if err := cfg.Sizing.Tunables().Validate(); err != nil {
		return fmt.Errorf("sizing: %w", err)
	}
	if cfg.Orders.DollarStep <= 0 {
		return errors.New("orders.dollarStep must be > 0")
	}
	if cfg.Orders.MaxPositionPct <= 0 || cfg.Orders.MaxPositionPct > 1 {
		return errors.New("orders.maxPositionPct must be in (0,1]")
	}
	if cfg.Execution.EquityUSD < 0 {
		return errors.New("execution.equityUSD must be >= 0")
	}
	return nil
}

// Tunables 转换为仓位算法参数。
func (s SizingConfig) Tunables() risk.Tunables {
	return risk.Tunables{
		MinProbability:  s.MinProbability,
		StrengthFloor:   s.StrengthFloor,
		StrengthSpan:    s.StrengthSpan,
		TargetDailyVol:  s.TargetDailyVol,
		FeeBps:          s.FeeBps,
		SlipBpsBase:     s.SlipBpsBase,
		CryptoCap:       s.CryptoCap,
		MaxPositionSize: s.MaxPositionSize,
		SignalThreshold: s.SignalThreshold,
	}
}

// BuilderConfig 转换为订单构造参数。
func (o OrdersConfig) BuilderConfig() order.BuilderConfig {
	return order.BuilderConfig{
		MaxPositionPct: o.MaxPositionPct,
		DollarStep:     o.DollarStep,
	}
}
