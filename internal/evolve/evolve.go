// Package evolve runs a generational neuro-evolution loop over network
// topologies and parameters.
//
// Each generation evaluates every genome concurrently, keeps the best
// genomes unchanged and fills the rest of the population with mutated clones
// of tournament-selected parents. All random draws that shape the population
// come from one seeded source in a fixed order, so a run is reproducible for
// a given seed whatever the worker count.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/evonet/internal/config"
	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/train"
)

// ErrInvalidConfig is returned when a Config cannot drive a run.
var ErrInvalidConfig = errors.New("invalid evolution config")

// FitnessFunc scores a genome; higher is better. It runs concurrently on
// distinct networks and owns the network it is given for the call.
type FitnessFunc func(ctx context.Context, net *network.Network) (float64, error)

// Config controls an evolution run.
type Config struct {
	Population        int
	Elitism           int
	Generations       int
	MutationsPerChild int

	// Mutations restricts the operators drawn for children; empty means all.
	Mutations []network.MutationKind

	Workers int

	// TargetError stops the run once the best fitness reaches -TargetError.
	// Zero disables the check.
	TargetError float64

	// Seed drives every random draw of the run. Zero picks a time-based seed.
	Seed int64

	TournamentSize int
}

// DefaultConfig returns the library defaults.
func DefaultConfig() Config {
	return Config{
		Population:        constants.DefaultPopulation,
		Elitism:           constants.DefaultElitism,
		Generations:       constants.DefaultGenerations,
		MutationsPerChild: constants.DefaultMutationsPerChild,
		Workers:           constants.DefaultWorkers,
		TargetError:       constants.DefaultErrorThreshold,
		TournamentSize:    constants.DefaultTournamentSize,
	}
}

// ConfigFromSettings maps the evolution section of the configuration.
func ConfigFromSettings(cfg config.EvolutionConfig, seed int64) Config {
	return Config{
		Population:        cfg.Population,
		Elitism:           cfg.Elitism,
		Generations:       cfg.Generations,
		MutationsPerChild: cfg.MutationsPerChild,
		Workers:           cfg.Workers,
		TargetError:       cfg.TargetError,
		Seed:              seed,
		TournamentSize:    constants.DefaultTournamentSize,
	}
}

// Validate reports settings that cannot drive a run.
func (c Config) Validate() error {
	switch {
	case c.Population < 1:
		return fmt.Errorf("population must be at least 1, got %d: %w", c.Population, ErrInvalidConfig)
	case c.Elitism < 0 || c.Elitism >= c.Population:
		return fmt.Errorf("elitism must be in [0, population), got %d: %w", c.Elitism, ErrInvalidConfig)
	case c.Generations < 1:
		return fmt.Errorf("generations must be at least 1, got %d: %w", c.Generations, ErrInvalidConfig)
	case c.MutationsPerChild < 0:
		return fmt.Errorf("mutations per child must be non-negative, got %d: %w", c.MutationsPerChild, ErrInvalidConfig)
	case c.TargetError < 0:
		return fmt.Errorf("target error must be non-negative, got %v: %w", c.TargetError, ErrInvalidConfig)
	}
	return nil
}

// Genome is one member of the population.
type Genome struct {
	Network *network.Network
	Fitness float64

	// Parent is the index, in the previous generation's ranking, of the
	// genome this one was bred from; -1 for the seed clones.
	Parent int
}

// GenerationStats summarises one evaluated generation.
type GenerationStats struct {
	Generation  int     `json:"generation"`
	Best        float64 `json:"best"`
	Mean        float64 `json:"mean"`
	Worst       float64 `json:"worst"`
	Nodes       int     `json:"nodes"`
	Connections int     `json:"connections"`
}

// Result is the outcome of Run.
type Result struct {
	Best        *network.Network
	Fitness     float64
	Generations int
	Converged   bool
	History     []GenerationStats
	Duration    time.Duration
}

// CheckpointFunc receives the ranked population after a generation.
type CheckpointFunc func(ctx context.Context, generation int, ranked []Genome) error

// Option configures Run.
type Option func(*runner)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) { r.logger = l }
}

// WithDecisionLogger records every mutation attempt.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(r *runner) { r.decisions = dl }
}

// WithCheckpoint calls fn after every generation that is a multiple of
// every, and after the last one.
func WithCheckpoint(every int, fn CheckpointFunc) Option {
	return func(r *runner) {
		r.checkpointEvery = every
		r.checkpoint = fn
	}
}

type runner struct {
	cfg             Config
	fitness         FitnessFunc
	rng             *rand.Rand
	logger          *slog.Logger
	decisions       *logging.DecisionLogger
	checkpointEvery int
	checkpoint      CheckpointFunc
}

// Run evolves clones of seed under fitness. The seed network itself is not
// modified.
func Run(ctx context.Context, seed *network.Network, fitness FitnessFunc, cfg Config, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if seed == nil || fitness == nil {
		return nil, fmt.Errorf("seed network and fitness are required: %w", ErrInvalidConfig)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TournamentSize < 1 {
		cfg.TournamentSize = constants.DefaultTournamentSize
	}

	r := &runner{
		cfg:     cfg,
		fitness: fitness,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)

	ctx, span := startRunSpan(ctx, cfg)
	defer span.End()

	start := time.Now()
	template := seed.Clone(r.childRand())
	population := make([]Genome, cfg.Population)
	for i := range population {
		population[i] = Genome{Network: template.Clone(r.childRand()), Parent: -1}
	}

	res := &Result{}
	var best *Genome
	for gen := 0; gen < cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return r.finish(res, best, start), err
		}
		if err := r.evaluate(ctx, population); err != nil {
			return r.finish(res, best, start), fmt.Errorf("generation %d: %w", gen, err)
		}
		rank(population)
		if best == nil || population[0].Fitness > best.Fitness {
			top := population[0]
			best = &top
		}

		stats := summarize(gen, population)
		res.History = append(res.History, stats)
		res.Generations = gen + 1
		recordGeneration(ctx, stats)
		r.logger.Info("generation evaluated",
			"generation", gen,
			"best", stats.Best,
			"mean", stats.Mean,
			"nodes", stats.Nodes,
			"connections", stats.Connections)

		done := cfg.TargetError > 0 && stats.Best >= -cfg.TargetError
		last := done || gen == cfg.Generations-1
		if r.checkpoint != nil && (last || r.checkpointEvery > 0 && (gen+1)%r.checkpointEvery == 0) {
			if err := r.checkpoint(ctx, gen, population); err != nil {
				return r.finish(res, best, start), fmt.Errorf("checkpoint generation %d: %w", gen, err)
			}
		}
		if done {
			res.Converged = true
			break
		}
		if !last {
			next, err := r.breed(ctx, gen+1, population)
			if err != nil {
				return r.finish(res, best, start), err
			}
			population = next
		}
	}

	r.finish(res, best, start)
	setRunSpanResult(span, res)
	r.logger.Debug("evolution finished",
		"generations", res.Generations,
		"fitness", res.Fitness,
		"converged", res.Converged,
		"duration", res.Duration)
	return res, nil
}

// childRand draws a fresh generator from the master source.
func (r *runner) childRand() network.Option {
	return network.WithRand(rand.New(rand.NewSource(r.rng.Int63())))
}

// finish records the best genome seen so far.
func (r *runner) finish(res *Result, best *Genome, start time.Time) *Result {
	res.Duration = time.Since(start)
	if best == nil {
		return res
	}
	res.Best = best.Network.Clone()
	res.Fitness = best.Fitness
	return res
}

// evaluate scores every genome with at most cfg.Workers concurrent calls.
func (r *runner) evaluate(ctx context.Context, population []Genome) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range population {
		g.Go(func() error {
			f, err := r.fitness(ctx, population[i].Network)
			if err != nil {
				return fmt.Errorf("genome %d: %w", i, err)
			}
			if math.IsNaN(f) {
				f = math.Inf(-1)
			}
			population[i].Fitness = f
			return nil
		})
	}
	return g.Wait()
}

// rank sorts by descending fitness; ties keep their previous order.
func rank(population []Genome) {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].Fitness > population[j].Fitness
	})
}

func summarize(gen int, ranked []Genome) GenerationStats {
	var sum float64
	for _, g := range ranked {
		sum += g.Fitness
	}
	st := ranked[0].Network.Stats()
	return GenerationStats{
		Generation:  gen,
		Best:        ranked[0].Fitness,
		Mean:        sum / float64(len(ranked)),
		Worst:       ranked[len(ranked)-1].Fitness,
		Nodes:       st.Nodes,
		Connections: st.Connections,
	}
}

// tournament returns the index of the best of TournamentSize random picks
// from a ranked population.
func (r *runner) tournament(n int) int {
	best := n
	for i := 0; i < r.cfg.TournamentSize; i++ {
		if pick := r.rng.Intn(n); pick < best {
			best = pick
		}
	}
	return best
}

type child struct {
	genome Genome
	events []logging.MutationEvent
}

// breed builds the next generation from a ranked population. Parent
// selection and cloning run sequentially on the master source; mutation runs
// concurrently, each child on its own generator.
func (r *runner) breed(ctx context.Context, gen int, ranked []Genome) ([]Genome, error) {
	next := make([]Genome, len(ranked))
	for i := 0; i < r.cfg.Elitism && i < len(ranked); i++ {
		next[i] = Genome{Network: ranked[i].Network, Fitness: ranked[i].Fitness, Parent: i}
	}

	children := make([]child, len(ranked))
	for i := r.cfg.Elitism; i < len(ranked); i++ {
		parent := r.tournament(len(ranked))
		children[i].genome = Genome{
			Network: ranked[parent].Network.Clone(r.childRand()),
			Parent:  parent,
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := r.cfg.Elitism; i < len(ranked); i++ {
		g.Go(func() error {
			c := &children[i]
			for m := 0; m < r.cfg.MutationsPerChild; m++ {
				kind, applied, err := c.genome.Network.MutateRandom(r.cfg.Mutations)
				if err != nil {
					return fmt.Errorf("mutating genome %d: %w", i, err)
				}
				st := c.genome.Network.Stats()
				c.events = append(c.events, logging.MutationEvent{
					Generation: gen,
					Genome:     i,
					Parent:     c.genome.Parent,
					Kind:       kind.String(),
					Applied:    applied,
					Nodes:      st.Nodes,
					Conns:      st.Connections,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := r.cfg.Elitism; i < len(ranked); i++ {
		next[i] = children[i].genome
		for _, e := range children[i].events {
			r.decisions.LogMutation(e)
			recordMutation(ctx, e.Kind, e.Applied)
			r.logger.Log(ctx, logging.LevelTrace, "mutation",
				"generation", e.Generation, "genome", e.Genome, "kind", e.Kind, "applied", e.Applied)
		}
	}
	return next, nil
}

// ErrorFitness scores a network by its negated mean squared error over
// samples. Recurrent state is cleared first.
func ErrorFitness(samples []train.Sample) FitnessFunc {
	return func(ctx context.Context, net *network.Network) (float64, error) {
		net.Clear()
		mse, err := train.Evaluate(net, samples)
		if err != nil {
			return 0, err
		}
		return -mse, nil
	}
}

// Penalize subtracts growth times the network's size (hidden nodes plus
// connections plus gates) from fit's score.
func Penalize(fit FitnessFunc, growth float64) FitnessFunc {
	if growth == 0 {
		return fit
	}
	return func(ctx context.Context, net *network.Network) (float64, error) {
		score, err := fit(ctx, net)
		if err != nil {
			return 0, err
		}
		return score - growth*Complexity(net), nil
	}
}

// Complexity counts hidden nodes, connections and gated connections.
func Complexity(net *network.Network) float64 {
	st := net.Stats()
	hidden := st.Nodes - len(net.Inputs()) - len(net.Outputs())
	gates := 0
	for _, id := range net.Connections() {
		if info, err := net.Connection(id); err == nil && info.Gater != network.NoNode {
			gates++
		}
	}
	return float64(hidden + st.Connections + gates)
}
