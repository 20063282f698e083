package cmd

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/game"
)

// childGrace is how long children get to notice the shutdown flag before they
// are killed.
const childGrace = 10 * time.Second

// shmName returns the shared-memory object name of a run.
func shmName(runID string) string {
	return "gangsim_" + strings.ReplaceAll(runID, "-", "")
}

// queueKey derives the message queue key of a run. Never 0, which is IPC_PRIVATE.
func queueKey(runID string) int {
	h := fnv.New32a()
	h.Write([]byte(runID))
	key := int(h.Sum32() & 0x7fffffff)
	if key == 0 {
		key = 1
	}
	return key
}

// childSpec is everything a child process needs to attach to a run.
type childSpec struct {
	ConfigToken string
	RunID       string
	ShmName     string
	QueueKey    int
	ResultsDB   string
	LogLevel    string
}

// args returns the command line for the child subcommand sub.
func (c childSpec) args(sub string, extra ...string) []string {
	args := []string{sub,
		"--config-token", c.ConfigToken,
		"--run-id", c.RunID,
		"--shm", c.ShmName,
		"--queue-key", strconv.Itoa(c.QueueKey),
		"--log", c.LogLevel,
	}
	if c.ResultsDB != "" {
		args = append(args, "--results-db", c.ResultsDB)
	}
	return append(args, extra...)
}

// runProcesses runs a simulation with the police force and every gang in their
// own process. This process owns the shared objects and the clock.
func runProcesses(ctx context.Context, cfg sim.Config, targets []sim.Target, runID string, opts runOptions) (*game.Result, error) {
	spec := childSpec{
		RunID:     runID,
		ShmName:   shmName(runID),
		QueueKey:  queueKey(runID),
		ResultsDB: opts.ResultsDB,
		LogLevel:  logLevel,
	}
	token, err := cfg.Serialize()
	if err != nil {
		return nil, err
	}
	spec.ConfigToken = token
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	res, err := game.SharedResources(spec.ShmName, spec.QueueKey)
	if err != nil {
		return nil, err
	}
	owner, err := game.NewOwner(cfg, targets, res, sim.NewPartitionedRNG(cfg.Seed))
	if err != nil {
		_ = res.Channel.Destroy()
		_ = res.Stats.Unlink()
		_ = res.Stats.Close()
		return nil, err
	}
	defer func() {
		// Destroying again is harmless when the police process already did.
		if err := errors.Join(res.Channel.Destroy(), owner.Close()); err != nil {
			logrus.Warnf("teardown: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var children []*exec.Cmd
	eg := new(errgroup.Group)
	start := func(name string, args []string) error {
		c := exec.Command(exe, args...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Start(); err != nil {
			return fmt.Errorf("starting %s: %w", name, err)
		}
		logrus.Debugf("started %s (pid %d)", name, c.Process.Pid)
		children = append(children, c)
		eg.Go(func() error {
			if err := c.Wait(); err != nil {
				cancel()
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		return nil
	}

	startErr := start("police", spec.args("police"))
	for g := 0; g < cfg.NumGangs && startErr == nil; g++ {
		startErr = start(fmt.Sprintf("gang %d", g), spec.args("gang", "--gang", strconv.Itoa(g)))
	}
	if startErr != nil {
		cancel()
	}

	reason := owner.Run(runCtx.Done(), opts.MaxTicks)
	if ctx.Err() == nil && runCtx.Err() != nil && reason == game.EndCancelled {
		logrus.Warnf("a child process failed; stopping the run")
	}
	waitErr := waitChildren(eg, children, childGrace)
	if err := errors.Join(startErr, waitErr); err != nil {
		return nil, err
	}
	return &game.Result{Config: cfg, Counters: owner.Counters(), EndReason: reason}, nil
}

// waitChildren waits for every child, killing the stragglers after grace.
func waitChildren(eg *errgroup.Group, children []*exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		logrus.Warnf("children still running %s after shutdown; killing them", grace)
		for _, c := range children {
			_ = c.Process.Kill()
		}
		return <-done
	}
}
