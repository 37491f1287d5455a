package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"krx-trader/internal/clock"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"

	ProviderKIS  = "KIS"
	ProviderKite = "KITE"
)

type Config struct {
	Mode   string `yaml:"mode"`
	LogDir string `yaml:"log_dir"`
	Broker struct {
		Provider      string  `yaml:"provider"`
		Virtual       bool    `yaml:"virtual"`
		Exchange      string  `yaml:"exchange"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Currency      string  `yaml:"currency"`
	} `yaml:"broker"`
	Retry struct {
		BaseDelayMs int `yaml:"base_delay_ms"`
		// MaxAttempts of zero retries connectivity failures forever.
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"retry"`
	Candidates struct {
		DBPath  string `yaml:"db_path"`
		Limit   int    `yaml:"limit"`
		Filters struct {
			Enabled                    bool     `yaml:"enabled"`
			MinGrowthScore             int      `yaml:"min_growth_score"`
			MinFinancialStabilityScore int      `yaml:"min_financial_stability_score"`
			Valuations                 []string `yaml:"valuations"`
			Signals                    []string `yaml:"signals"`
		} `yaml:"filters"`
	} `yaml:"candidates"`
	Strategy struct {
		UpperLimit struct {
			MinPrevBody    float64 `yaml:"min_prev_body"`
			MinAmountRatio float64 `yaml:"min_amount_ratio"`
			MinGap         float64 `yaml:"min_gap"`
			MaxGap         float64 `yaml:"max_gap"`
		} `yaml:"upper_limit"`
	} `yaml:"strategy"`
	Runners struct {
		Periodic RunnerConfig `yaml:"periodic"`
		RealTime RunnerConfig `yaml:"realtime"`
		Upper    struct {
			MaxBuyAmount  int64  `yaml:"max_buy_amount"`
			MaxTrial      int    `yaml:"max_trial"`
			PeriodSeconds int    `yaml:"period_seconds"`
			TradeStart    string `yaml:"trade_start"`
		} `yaml:"upper"`
	} `yaml:"runners"`
	Schedule struct {
		Enabled          []string `yaml:"enabled"`
		PeriodicStart    string   `yaml:"periodic_start"`
		PeriodicStop     string   `yaml:"periodic_stop"`
		RealTimeStart    string   `yaml:"realtime_start"`
		RealTimeStop     string   `yaml:"realtime_stop"`
		UpperStart       string   `yaml:"upper_start"`
		UpperStop        string   `yaml:"upper_stop"`
		EOD              string   `yaml:"eod"`
		HeartbeatMinutes int      `yaml:"heartbeat_minutes"`
	} `yaml:"schedule"`
	Notify struct {
		// WebhookEnv names the environment variable holding the Discord webhook.
		WebhookEnv string `yaml:"webhook_env"`
	} `yaml:"notify"`
}

// RunnerConfig is shared by the periodic and real-time traders.
type RunnerConfig struct {
	Strategy     string  `yaml:"strategy"`
	MaxStock     int     `yaml:"max_stock"`
	MaxBuyAmount int64   `yaml:"max_buy_amount"`
	PollSeconds  int     `yaml:"poll_seconds"`
	ExitsEnabled bool    `yaml:"exits_enabled"`
	TakeProfit   float64 `yaml:"take_profit"`
	StopLoss     float64 `yaml:"stop_loss"`
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = ProviderKIS
	}
	if c.Broker.Currency == "" {
		if c.Broker.Provider == ProviderKite {
			c.Broker.Currency = "INR"
		} else {
			c.Broker.Currency = "KRW"
		}
	}
	if c.Broker.Exchange == "" && c.Broker.Provider == ProviderKite {
		c.Broker.Exchange = "NSE"
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 200
	}
	if c.Candidates.DBPath == "" {
		c.Candidates.DBPath = "data/advisory.db"
	}
	if c.Candidates.Limit == 0 {
		c.Candidates.Limit = 5
	}

	u := &c.Strategy.UpperLimit
	if u.MinPrevBody == 0 {
		u.MinPrevBody = 0.29
	}
	if u.MinAmountRatio == 0 {
		u.MinAmountRatio = 1.1
	}
	if u.MinGap == 0 {
		u.MinGap = 1.01
	}
	if u.MaxGap == 0 {
		u.MaxGap = 1.1
	}

	for _, r := range []*RunnerConfig{&c.Runners.Periodic, &c.Runners.RealTime} {
		if r.MaxStock == 0 {
			r.MaxStock = 1
		}
		if r.MaxBuyAmount == 0 {
			r.MaxBuyAmount = 1000000
		}
		if r.PollSeconds == 0 {
			r.PollSeconds = 10
		}
	}
	if c.Runners.Periodic.Strategy == "" {
		c.Runners.Periodic.Strategy = "deposit_guard"
	}
	if c.Runners.RealTime.Strategy == "" {
		c.Runners.RealTime.Strategy = "basic"
	}
	if c.Runners.Upper.MaxBuyAmount == 0 {
		c.Runners.Upper.MaxBuyAmount = 1000000
	}
	if c.Runners.Upper.MaxTrial == 0 {
		c.Runners.Upper.MaxTrial = 20
	}
	if c.Runners.Upper.PeriodSeconds == 0 {
		c.Runners.Upper.PeriodSeconds = 300
	}
	if c.Runners.Upper.TradeStart == "" {
		c.Runners.Upper.TradeStart = "14:30"
	}

	s := &c.Schedule
	if s.Enabled == nil {
		s.Enabled = []string{"periodic", "upper"}
	}
	setDefault(&s.PeriodicStart, "09:01")
	setDefault(&s.PeriodicStop, "15:31")
	setDefault(&s.RealTimeStart, "09:01")
	setDefault(&s.RealTimeStop, "15:20")
	setDefault(&s.UpperStart, "14:00")
	setDefault(&s.UpperStop, "15:31")
	setDefault(&s.EOD, "15:40")
	if s.HeartbeatMinutes == 0 {
		s.HeartbeatMinutes = 30
	}
	setDefault(&c.Notify.WebhookEnv, "DISCORD_WEBHOOK")
}

func setDefault(field *string, v string) {
	if *field == "" {
		*field = v
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Broker.Provider != ProviderKIS && c.Broker.Provider != ProviderKite {
		return fmt.Errorf("invalid broker.provider '%s': must be 'KIS' or 'KITE'", c.Broker.Provider)
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxAttempts < 0 {
		return errors.New("retry.base_delay_ms and retry.max_attempts cannot be negative")
	}
	if c.Candidates.Limit < 0 {
		return fmt.Errorf("candidates.limit cannot be negative, got %d", c.Candidates.Limit)
	}
	u := c.Strategy.UpperLimit
	if u.MinGap > u.MaxGap {
		return fmt.Errorf("strategy.upper_limit.min_gap %.2f exceeds max_gap %.2f", u.MinGap, u.MaxGap)
	}
	for name, r := range map[string]RunnerConfig{"periodic": c.Runners.Periodic, "realtime": c.Runners.RealTime} {
		if r.MaxStock < 0 {
			return fmt.Errorf("runners.%s.max_stock cannot be negative, got %d", name, r.MaxStock)
		}
		if r.MaxBuyAmount <= 0 {
			return fmt.Errorf("runners.%s.max_buy_amount must be positive, got %d", name, r.MaxBuyAmount)
		}
		if r.TakeProfit < 0 || r.StopLoss < 0 || r.StopLoss >= 1 {
			return fmt.Errorf("runners.%s take_profit/stop_loss out of range", name)
		}
	}
	if c.Runners.Upper.MaxTrial < 0 {
		return fmt.Errorf("runners.upper.max_trial cannot be negative, got %d", c.Runners.Upper.MaxTrial)
	}

	s := c.Schedule
	for key, v := range map[string]string{
		"runners.upper.trade_start": c.Runners.Upper.TradeStart,
		"schedule.periodic_start":   s.PeriodicStart,
		"schedule.periodic_stop":    s.PeriodicStop,
		"schedule.realtime_start":   s.RealTimeStart,
		"schedule.realtime_stop":    s.RealTimeStop,
		"schedule.upper_start":      s.UpperStart,
		"schedule.upper_stop":       s.UpperStop,
		"schedule.eod":              s.EOD,
	} {
		if _, _, err := clock.ParseHHMM(v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	for _, name := range s.Enabled {
		switch name {
		case "periodic", "realtime", "upper":
		default:
			return fmt.Errorf("schedule.enabled: unknown runner '%s'", name)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
