// Package config loads simulation settings.
// Priority: ENV > .env file > YAML file > defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/glade-market/internal/agents"
	"github.com/talgya/glade-market/internal/economy"
)

// WorkshopConfig places one production building in every settlement.
type WorkshopConfig struct {
	Name   string        `yaml:"name"`
	Recipe agents.Recipe `yaml:"recipe"`
	Coins  float64       `yaml:"coins"`
	Keep   int64         `yaml:"keep"`
	// Harvest modulates output with a noise field; for fields and mines.
	Harvest bool `yaml:"harvest"`
}

// HouseholdConfig places households in every settlement.
type HouseholdConfig struct {
	Count   int          `yaml:"count"`
	Members int64        `yaml:"members"`
	Food    economy.Good `yaml:"food"`
	Labor   economy.Good `yaml:"labor"`
	Coins   float64      `yaml:"coins"`
}

type Simulation struct {
	Seed        int64         `yaml:"seed"`
	Interval    time.Duration `yaml:"interval"`
	Speed       float64       `yaml:"speed"`
	Settlements []string      `yaml:"settlements"`
	// MaxOrdersPerTick caps order intake per settlement market; 0 = no cap.
	MaxOrdersPerTick int    `yaml:"max_orders_per_tick"`
	SaveEvery        uint64 `yaml:"save_every"` // Ticks between meta saves
}

type Economy struct {
	Currency   economy.Good       `yaml:"currency"`
	Goods      []economy.GoodSpec `yaml:"goods"`
	Workshops  []WorkshopConfig   `yaml:"workshops"`
	Households HouseholdConfig    `yaml:"households"`
}

type Storage struct {
	DBPath string `yaml:"db_path"`
}

type API struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"-"` // env only
}

type Log struct {
	Level string `yaml:"level"`
}

// Config is the complete set of settings for one run.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Economy    Economy    `yaml:"economy"`
	Storage    Storage    `yaml:"storage"`
	API        API        `yaml:"api"`
	Log        Log        `yaml:"log"`
}

// Default returns a small working settlement economy.
func Default() Config {
	return Config{
		Simulation: Simulation{
			Seed:        42,
			Interval:    time.Second,
			Speed:       1,
			Settlements: []string{"Glade"},
			SaveEvery:   60,
		},
		Economy: Economy{
			Currency: "coin",
			Goods: []economy.GoodSpec{
				{ID: "coin", BaseValue: 1, IsCurrency: true},
				{ID: "labor", BaseValue: 3, Perishable: true},
				{ID: "grain", BaseValue: 2},
				{ID: "timber", BaseValue: 3},
				{ID: "bread", BaseValue: 5, Perishable: true},
			},
			Workshops: []WorkshopConfig{
				{
					Name:    "farm",
					Recipe:  agents.Recipe{Output: "grain", OutputAmount: 6, Inputs: []agents.Amount{{Good: "labor", Qty: 2}}},
					Coins:   60,
					Harvest: true,
				},
				{
					Name:   "bakery",
					Recipe: agents.Recipe{Output: "bread", OutputAmount: 4, Inputs: []agents.Amount{{Good: "grain", Qty: 2}, {Good: "labor", Qty: 1}}},
					Coins:  60,
				},
			},
			Households: HouseholdConfig{
				Count:   4,
				Members: 1,
				Food:    "bread",
				Labor:   "labor",
				Coins:   30,
			},
		},
		Storage: Storage{DBPath: "data/glade.db"},
		API:     API{Port: 8080},
		Log:     Log{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies .env and environment overrides.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GLADE_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Simulation.Seed = n
		}
	}
	if v := os.Getenv("GLADE_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("GLADE_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.Speed = f
		}
	}
	if v := os.Getenv("GLADE_MAX_ORDERS_PER_TICK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.MaxOrdersPerTick = n
		}
	}
	if v := os.Getenv("GLADE_SETTLEMENTS"); v != "" {
		var names []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
		}
		cfg.Simulation.Settlements = names
	}
	if v := os.Getenv("GLADE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("GLADE_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
	if v := os.Getenv("GLADE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	cfg.API.AdminKey = os.Getenv("GLADE_ADMIN_KEY")
}

// Validate checks settings that would make the simulation meaningless.
func (c Config) Validate() error {
	var errs []error
	if c.Simulation.Interval <= 0 {
		errs = append(errs, errors.New("simulation.interval must be positive"))
	}
	if c.Simulation.Speed < 0 {
		errs = append(errs, errors.New("simulation.speed must not be negative"))
	}
	if c.Simulation.MaxOrdersPerTick < 0 {
		errs = append(errs, errors.New("simulation.max_orders_per_tick must not be negative"))
	}
	if len(c.Simulation.Settlements) == 0 {
		errs = append(errs, errors.New("simulation.settlements is empty"))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}

	goods := make(map[economy.Good]economy.GoodSpec, len(c.Economy.Goods))
	for _, g := range c.Economy.Goods {
		goods[g.ID] = g
	}
	if cur, ok := goods[c.Economy.Currency]; !ok || !cur.IsCurrency {
		errs = append(errs, fmt.Errorf("economy.currency %q is not a currency good", c.Economy.Currency))
	}
	known := func(where string, g economy.Good) {
		if _, ok := goods[g]; !ok {
			errs = append(errs, fmt.Errorf("%s: unknown good %q", where, g))
		}
	}
	for _, w := range c.Economy.Workshops {
		known("workshop "+w.Name+" output", w.Recipe.Output)
		for _, in := range w.Recipe.Inputs {
			known("workshop "+w.Name+" input", in.Good)
		}
		if w.Recipe.OutputAmount <= 0 {
			errs = append(errs, fmt.Errorf("workshop %s: output_amount must be positive", w.Name))
		}
	}
	if h := c.Economy.Households; h.Count > 0 {
		known("households food", h.Food)
		known("households labor", h.Labor)
		if h.Members <= 0 {
			errs = append(errs, errors.New("households.members must be positive"))
		}
	}
	return errors.Join(errs...)
}

// LogLevel maps Log.Level to a slog level, defaulting to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
