package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/game"
	"github.com/gang-sim/gang-sim/sim/trace"
)

var (
	configPath  string // YAML config file
	targetsPath string // JSON targets file
	inProcess   bool   // run gangs and police as goroutines in this process
	resultsDB   string // SQLite results database
	traceOut    string // zstd JSONL event export
	traceLevel  string // in-process trace verbosity
	seed        int64  // overrides the config seed when set
	maxTicks    int    // stop after this many ticks (0 = no limit)
)

// runOptions carries the run flags past the cobra layer.
type runOptions struct {
	InProcess  bool
	ResultsDB  string
	TraceOut   string
	TraceLevel trace.TraceLevel
	MaxTicks   int
}

// runReport is printed to stdout when a run ends.
type runReport struct {
	RunID     string         `json:"run_id"`
	Mode      string         `json:"mode"`
	Seed      int64          `json:"seed"`
	NumGangs  int            `json:"num_gangs"`
	EndReason game.EndReason `json:"end_reason"`
	game.Counters
	Summary *trace.TraceSummary `json:"summary,omitempty"`
}

// runCmd executes a simulation using the config and targets files
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: "Run a simulation until a game-ending condition is reached. By default the police force and " +
		"every gang run as separate processes over shared memory; --in-process runs them as goroutines.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = seed
		}
		targets, err := loadTargets(targetsPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		opts := runOptions{
			InProcess:  inProcess,
			ResultsDB:  resultsDB,
			TraceOut:   traceOut,
			TraceLevel: trace.TraceLevel(traceLevel),
			MaxTicks:   maxTicks,
		}
		if !opts.InProcess && opts.TraceOut != "" {
			logrus.Fatalf("--trace-out requires --in-process; multi-process runs record to --results-db")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := runSimulation(ctx, cfg, targets, opts)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if err := printReport(os.Stdout, report); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// runSimulation runs one simulation and stores its results.
func runSimulation(ctx context.Context, cfg sim.Config, targets []sim.Target, opts runOptions) (*runReport, error) {
	cfg = cfg.ResolveGangs(sim.NewPartitionedRNG(cfg.Seed).ForSubsystem(sim.SubsystemOwner))
	runID := uuid.NewString()
	mode := "processes"
	if opts.InProcess {
		mode = "in-process"
	}
	log := logrus.WithField("run", runID)

	var store *trace.Store
	if opts.ResultsDB != "" {
		var err error
		if store, err = trace.OpenStore(opts.ResultsDB); err != nil {
			return nil, fmt.Errorf("opening results db: %w", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.BeginRun(ctx, trace.RunRecord{
			ID: runID, StartedAt: time.Now(), Seed: cfg.Seed, NumGangs: cfg.NumGangs, Mode: mode,
		}); err != nil {
			return nil, err
		}
	}
	log.Infof("starting %s run: %d gangs, seed %d", mode, cfg.NumGangs, cfg.Seed)

	var (
		res *game.Result
		st  *trace.SimulationTrace
		err error
	)
	if opts.InProcess {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: opts.TraceLevel})
		res, err = game.RunInProcess(ctx, cfg, targets, game.Options{Recorder: st, MaxTicks: opts.MaxTicks})
	} else {
		res, err = runProcesses(ctx, cfg, targets, runID, opts)
	}
	if err != nil {
		return nil, err
	}

	report := &runReport{
		RunID: runID, Mode: mode, Seed: cfg.Seed, NumGangs: res.Config.NumGangs,
		EndReason: res.EndReason, Counters: res.Counters,
	}
	if st != nil {
		report.Summary = trace.Summarize(st)
		if opts.TraceOut != "" {
			if err := trace.ExportJSONL(opts.TraceOut, st); err != nil {
				return nil, fmt.Errorf("exporting trace: %w", err)
			}
			log.Infof("trace written to %s", opts.TraceOut)
		}
	}
	if store != nil {
		// Finishing uses a fresh context: an interrupted run still gets its row completed.
		fctx := context.Background()
		if st != nil {
			if err := store.SaveTrace(fctx, runID, st); err != nil {
				return nil, err
			}
		}
		if err := store.FinishRun(fctx, trace.RunRecord{
			ID: runID, FinishedAt: time.Now(), EndReason: string(res.EndReason),
			SuccessfulPlans: res.Counters.SuccessfulPlans, ThwartedPlans: res.Counters.ThwartedPlans,
			ExecutedAgents: res.Counters.ExecutedAgents, ElapsedTicks: res.Counters.ElapsedTicks,
		}); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func printReport(w io.Writer, r *runReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "=== Simulation Results ===\n%s\n", data)
	return err
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults apply when empty)")
	runCmd.Flags().StringVar(&targetsPath, "targets", "", "Path to a JSON targets file (built-in table when empty)")
	runCmd.Flags().BoolVar(&inProcess, "in-process", false, "Run the police force and gangs as goroutines in this process")
	runCmd.Flags().StringVar(&resultsDB, "results-db", "", "SQLite database to record the run and its events in")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the event trace as zstd-compressed JSON lines (in-process only)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelAll), "In-process trace verbosity (none, plans, all)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for every random stream (overrides the config file)")
	runCmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "Stop after this many ticks (0 = run until a game-ending condition)")

	rootCmd.AddCommand(runCmd)
}
