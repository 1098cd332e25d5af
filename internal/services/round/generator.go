package round

import (
	"fmt"
	"log/slog"

	"github.com/mcoot/georally/internal/dependencies/random"
	"github.com/mcoot/georally/internal/model"
	"github.com/mcoot/georally/internal/services/geo"
)

// BannedChancePercent is the chance that a hard round bans a country
const BannedChancePercent = 25

// Config controls round generation
type Config struct {
	// MaxAttempts bounds the reject-and-redraw loop
	MaxAttempts int
}

// DefaultConfig returns the default generation settings
func DefaultConfig() Config {
	return Config{MaxAttempts: 1000}
}

// Generator draws round parameters from the country graph
type Generator struct {
	graph  *geo.Graph
	random random.Random
	cfg    Config
	logger *slog.Logger
}

// New creates a round generator
func New(graph *geo.Graph, rnd random.Random, cfg Config, logger *slog.Logger) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Generator{
		graph:  graph,
		random: rnd,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "round_generator")),
	}
}

// Generate draws start, middle and target so that no two of them are equal or
// share a border. Hard rounds may also ban one country on a shortest
// start-to-middle route.
func (g *Generator) Generate(difficulty model.Difficulty) (model.Round, error) {
	names := g.graph.Names()
	if len(names) < 3 {
		return model.Round{}, fmt.Errorf("%w: only %d countries", model.ErrGenerationExhausted, len(names))
	}

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		start := names[g.random.Intn(len(names))]
		middle := names[g.random.Intn(len(names))]
		target := names[g.random.Intn(len(names))]

		if !g.spread(start, middle, target) {
			continue
		}

		r := model.Round{
			Difficulty: difficulty,
			Start:      start,
			Middle:     middle,
			Target:     target,
		}
		if difficulty == model.DifficultyHard && random.Chance(g.random, BannedChancePercent) {
			if path := g.graph.ShortestPath(start, middle); path != nil {
				r.Banned = path[g.random.Intn(len(path))]
			}
		}

		g.logger.Debug("round generated",
			slog.String("difficulty", string(difficulty)),
			slog.Int("attempts", attempt),
			slog.String("banned", r.Banned))
		return r, nil
	}

	g.logger.Error("round generation exhausted",
		slog.String("difficulty", string(difficulty)),
		slog.Int("max_attempts", g.cfg.MaxAttempts),
		slog.Int("countries", len(names)))
	return model.Round{}, fmt.Errorf("%w after %d attempts", model.ErrGenerationExhausted, g.cfg.MaxAttempts)
}

// spread reports whether the three countries are pairwise distinct and non-adjacent
func (g *Generator) spread(a, b, c string) bool {
	pairs := [][2]string{{a, b}, {a, c}, {b, c}}
	for _, p := range pairs {
		if p[0] == p[1] || g.graph.AreNeighbours(p[0], p[1]) {
			return false
		}
	}
	return true
}
