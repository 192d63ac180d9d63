package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cwbudde/peakfit/internal/engine"
	"github.com/cwbudde/peakfit/internal/fit"
	"github.com/spf13/cobra"
)

var (
	peaks      int
	gridSize   int
	solverName string
	methodName string
	noiseSigma float64
	iters      int
	workers    int
	seed       int64
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit synthetic Gaussian peak regions",
	Long: `Generates synthetic noisy 2D Gaussian peak regions, dispatches them
across the fit engine with the selected solver, and prints a summary.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().IntVar(&peaks, "peaks", 100, "Number of peak regions to fit")
	fitCmd.Flags().IntVar(&gridSize, "size", 16, "Region size (size x size samples)")
	fitCmd.Flags().StringVar(&solverName, "solver", "lse", "Solver: lse, bounded, mle")
	fitCmd.Flags().StringVar(&methodName, "method", "pattern", "MLE search method: pattern, bounded_pattern, quadratic, evolutionary, conjugate_fr, conjugate_pr")
	fitCmd.Flags().Float64Var(&noiseSigma, "noise", 2.0, "Gaussian noise sigma added to the data")
	fitCmd.Flags().IntVar(&iters, "iters", 100, "Max iterations per fit")
	fitCmd.Flags().IntVar(&workers, "workers", 4, "Worker goroutines")
	fitCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")

	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	slog.Info("Starting fit run",
		"peaks", peaks,
		"size", gridSize,
		"solver", solverName,
		"noise", noiseSigma,
	)

	newSolver, err := solverFactory(gridSize)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	manager := engine.NewJobManager()
	jobs := make([]*engine.Job, 0, peaks)
	for p := 0; p < peaks; p++ {
		truth, data := syntheticRegion(gridSize, noiseSigma, rng)
		initial := perturb(truth, rng)
		jobs = append(jobs, manager.CreateJob(data, initial))
	}

	pool := engine.NewPool(workers, newSolver, manager)

	start := time.Now()
	pool.Run(context.Background(), jobs)
	elapsed := time.Since(start)

	completed := 0
	var totalRSS float64
	byStatus := map[string]int{}
	for _, job := range jobs {
		if job.State == engine.StateCompleted {
			completed++
			totalRSS += job.Result.ResidualSS
		}
		if job.Result != nil {
			byStatus[job.Result.Status.String()]++
		}
	}

	meanRSS := 0.0
	if completed > 0 {
		meanRSS = totalRSS / float64(completed)
	}

	slog.Info("Fit run complete",
		"elapsed", elapsed,
		"completed", completed,
		"total", len(jobs),
		"mean_rss", meanRSS,
	)
	for status, n := range byStatus {
		slog.Info("Status", "status", status, "count", n)
	}

	fmt.Printf("Fitted %d/%d regions in %s (mean RSS %.2f, %.0f fits/sec)\n",
		completed, len(jobs), elapsed, meanRSS, float64(len(jobs))/elapsed.Seconds())

	return nil
}

// syntheticRegion generates one noisy Gaussian peak region and its
// generating coefficients.
func syntheticRegion(size int, sigma float64, rng *rand.Rand) ([]float64, []float64) {
	c := float64(size-1) / 2
	truth := []float64{
		10 + 5*rng.Float64(),     // background
		100 + 100*rng.Float64(),  // amplitude
		c + 2*(rng.Float64()-.5), // x
		c + 2*(rng.Float64()-.5), // y
		1 + rng.Float64(),        // sx
		1 + rng.Float64(),        // sy
	}

	model := fit.NewGaussian2D(size, size)
	model.Initialise(truth)
	data := make([]float64, size*size)
	for i := range data {
		data[i] = model.Eval(i) + sigma*rng.NormFloat64()
	}
	return truth, data
}

// perturb shifts the generating coefficients into a plausible starting guess.
func perturb(truth []float64, rng *rand.Rand) []float64 {
	initial := append([]float64(nil), truth...)
	initial[fit.GaussBackground] *= 1 + 0.2*(rng.Float64()-.5)
	initial[fit.GaussAmplitude] *= 1 + 0.3*(rng.Float64()-.5)
	initial[fit.GaussX] += rng.Float64() - .5
	initial[fit.GaussY] += rng.Float64() - .5
	initial[fit.GaussWidthX] *= 1 + 0.2*(rng.Float64()-.5)
	initial[fit.GaussWidthY] *= 1 + 0.2*(rng.Float64()-.5)
	return initial
}

// solverFactory builds the per-worker solver constructor for the selected
// solver and grid size.
func solverFactory(size int) (func() fit.Solver, error) {
	span := float64(size - 1)
	lower := []float64{0, 0, 0, 0, 0.5, 0.5}
	upper := []float64{1e4, 1e5, span, span, span, span}

	switch solverName {
	case "lse":
		return func() fit.Solver {
			s := fit.NewGaussNewton(nil)
			s.SetObjectiveModel(fit.NewGaussian2D(size, size))
			s.SetMaxIterations(iters)
			return s
		}, nil

	case "bounded":
		return func() fit.Solver {
			b := fit.NewBoundedGaussNewton(nil)
			b.SetObjectiveModel(fit.NewGaussian2D(size, size))
			b.SetMaxIterations(iters)
			if err := b.SetBounds(lower, upper); err != nil {
				panic(err)
			}
			b.SetClampValues([]float64{100, 1000, 1, 1, 3, 3})
			b.SetDynamicClamp(true)
			return b
		}, nil

	case "mle":
		method, err := parseMethod(methodName)
		if err != nil {
			return nil, err
		}
		return func() fit.Solver {
			m := fit.NewMaximumLikelihood()
			m.SetObjectiveModel(fit.NewGaussian2D(size, size))
			m.SetSearchMethod(method)
			m.SetMaxIterations(iters * 10)
			m.SetSeed(seed)
			if err := m.SetBounds(lower, upper); err != nil {
				panic(err)
			}
			return m
		}, nil
	}
	return nil, fmt.Errorf("unknown solver: %s", solverName)
}

func parseMethod(name string) (fit.SearchMethod, error) {
	for _, m := range []fit.SearchMethod{
		fit.SearchPattern,
		fit.SearchBoundedPattern,
		fit.SearchQuadratic,
		fit.SearchEvolutionary,
		fit.SearchConjugateFR,
		fit.SearchConjugatePR,
	} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown search method: %s", name)
}
