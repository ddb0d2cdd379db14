// Simulation ties the scheduler, the settlement markets and their
// participants together. Everything is built here, once, and handed out
// by reference; nothing is discovered at runtime.
package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/glade-market/internal/agents"
	"github.com/talgya/glade-market/internal/config"
	"github.com/talgya/glade-market/internal/economy"
)

// Settlement is one local economy: a market and the buildings and
// households trading on it.
type Settlement struct {
	Name       string
	Market     *economy.Market
	Workshops  []*agents.Workshop
	Households []*agents.Household
}

// Participants returns every trader in the settlement in registration order.
func (s *Settlement) Participants() []economy.Participant {
	out := make([]economy.Participant, 0, len(s.Workshops)+len(s.Households))
	for _, w := range s.Workshops {
		out = append(out, w)
	}
	for _, h := range s.Households {
		out = append(out, h)
	}
	return out
}

// SettlementStats is a point-in-time summary of one settlement.
type SettlementStats struct {
	Name       string             `json:"name"`
	Coins      float64            `json:"coins"`
	Hungry     int                `json:"hungry_households"`
	Stock      map[string]int64   `json:"stock"`
	LastReport economy.TickReport `json:"last_report"`
}

// Stats is a point-in-time summary of the whole simulation.
type Stats struct {
	Tick        uint64            `json:"tick"`
	SimTime     string            `json:"sim_time"`
	Trades      int               `json:"trades_last_tick"`
	TotalTrades uint64            `json:"total_trades"`
	Rejected    uint64            `json:"total_rejected"`
	Settlements []SettlementStats `json:"settlements"`
}

// Simulation holds the complete economy and the scheduler that drives it.
type Simulation struct {
	Scheduler   *Scheduler
	Catalog     *economy.Catalog
	Settlements []*Settlement

	log *slog.Logger

	mu     sync.RWMutex
	stats  Stats
	trades uint64
	reject uint64
}

// NewSimulation builds every settlement from cfg and registers tickables
// in a fixed order: for each settlement, households, then workshops, then
// the market; the stats collector runs last.
func NewSimulation(cfg config.Config, logger *slog.Logger) (*Simulation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog, err := economy.NewCatalog(cfg.Economy.Goods)
	if err != nil {
		return nil, err
	}
	currency := cfg.Economy.Currency

	sched := NewScheduler()
	sched.Interval = cfg.Simulation.Interval
	sched.SetSpeed(cfg.Simulation.Speed)

	sim := &Simulation{
		Scheduler: sched,
		Catalog:   catalog,
		log:       logger,
	}

	for si, name := range cfg.Simulation.Settlements {
		sett := &Settlement{
			Name: name,
			Market: economy.NewMarket(economy.Options{
				MaxOrdersPerTick: cfg.Simulation.MaxOrdersPerTick,
				Logger:           logger.With("settlement", name),
			}),
		}

		hc := cfg.Economy.Households
		for i := 0; i < hc.Count; i++ {
			h := agents.NewHousehold(fmt.Sprintf("%s/household-%d", name, i+1),
				hc.Members, hc.Food, hc.Labor, catalog, currency, hc.Coins)
			sett.Households = append(sett.Households, h)
		}
		for wi, wc := range cfg.Economy.Workshops {
			w := agents.NewWorkshop(fmt.Sprintf("%s/%s", name, wc.Name), wc.Recipe, catalog, currency, wc.Coins)
			w.Keep = wc.Keep
			if wc.Harvest {
				w.Yield = agents.NewHarvest(cfg.Simulation.Seed+int64(si), float64(wi))
			}
			sett.Workshops = append(sett.Workshops, w)
		}

		for _, h := range sett.Households {
			sched.Register(h)
		}
		for _, w := range sett.Workshops {
			sched.Register(w)
		}
		for _, p := range sett.Participants() {
			sett.Market.Register(p)
		}
		sched.Register(Func("market:"+name, sett.Market.Tick))

		sim.Settlements = append(sim.Settlements, sett)
	}

	sched.Register(Func("stats", sim.collectStats))

	slog.Info("simulation built",
		"settlements", len(sim.Settlements),
		"tickables", sched.Len(),
		"goods", len(catalog.All()),
	)
	return sim, nil
}

// AddObserver attaches an observer to every settlement market. newObs
// is called once per settlement with its name.
func (s *Simulation) AddObserver(newObs func(settlement string) economy.TradeObserver) {
	for _, sett := range s.Settlements {
		sett.Market.AddObserver(newObs(sett.Name))
	}
}

// Resume continues numbering from tick, on the scheduler, every market and
// every workshop's harvest clock.
func (s *Simulation) Resume(tick uint64) {
	s.Scheduler.SetTick(tick)
	for _, sett := range s.Settlements {
		sett.Market.SetTick(tick)
		for _, w := range sett.Workshops {
			w.SetTick(tick)
		}
	}
}

// Settlement returns the settlement with the given name.
func (s *Simulation) Settlement(name string) (*Settlement, bool) {
	i := slices.IndexFunc(s.Settlements, func(st *Settlement) bool { return st.Name == name })
	if i < 0 {
		return nil, false
	}
	return s.Settlements[i], true
}

// Snapshot returns the stats as of the last completed tick.
func (s *Simulation) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.stats
	out.Settlements = slices.Clone(s.stats.Settlements)
	return out
}

// collectStats runs as the last tickable of every tick.
func (s *Simulation) collectStats(dt float64) error {
	tick := s.Scheduler.Tick()
	stats := Stats{Tick: tick, SimTime: SimTime(tick)}

	var trades, rejected int
	for _, sett := range s.Settlements {
		ss := SettlementStats{
			Name:       sett.Name,
			Stock:      make(map[string]int64),
			LastReport: sett.Market.LastReport(),
		}
		for _, w := range sett.Workshops {
			ss.Coins += w.Coins
			for g, n := range w.Stock {
				ss.Stock[string(g)] += n
			}
		}
		for _, h := range sett.Households {
			ss.Coins += h.Coins
			if h.Hunger > 0 {
				ss.Hungry++
			}
		}
		trades += ss.LastReport.Trades
		rejected += ss.LastReport.Rejected
		stats.Settlements = append(stats.Settlements, ss)
	}
	stats.Trades = trades

	s.mu.Lock()
	s.trades += uint64(trades)
	s.reject += uint64(rejected)
	stats.TotalTrades = s.trades
	stats.Rejected = s.reject
	s.stats = stats
	s.mu.Unlock()

	if tick%TicksPerSimHour == 0 {
		s.log.Info("hourly report",
			"tick", tick,
			"time", SimTime(tick),
			"trades_total", stats.TotalTrades,
			"rejected_total", stats.Rejected,
		)
	}
	return nil
}
