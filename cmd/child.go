package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/game"
	"github.com/gang-sim/gang-sim/sim/gang"
	"github.com/gang-sim/gang-sim/sim/police"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

var (
	childToken     string // serialized config
	childRunID     string
	childShm       string
	childQueueKey  int
	childResultsDB string
	childGang      int
)

// attachment is a child process's view of a running simulation.
type attachment struct {
	cfg   sim.Config
	h     *region.Handle
	res   game.Resources
	store *trace.Store
	rec   trace.Recorder
}

// attach decodes the child flags and maps the run's shared objects.
func attach() (*attachment, error) {
	cfg, err := sim.DeserializeConfig(childToken)
	if err != nil {
		return nil, err
	}
	res, err := game.SharedResources(childShm, childQueueKey)
	if err != nil {
		return nil, err
	}
	h, err := region.Attach(cfg, res.Backing)
	if err != nil {
		_ = res.Stats.Close()
		return nil, err
	}
	a := &attachment{cfg: cfg, h: h, res: res, rec: trace.Discard}
	if childResultsDB != "" {
		if a.store, err = trace.OpenStore(childResultsDB); err != nil {
			_ = a.close()
			return nil, fmt.Errorf("opening results db: %w", err)
		}
		a.rec = a.store.Recorder(childRunID)
	}
	return a, nil
}

// close unmaps everything. Children never unlink: the owner does.
func (a *attachment) close() error {
	err := errors.Join(a.h.Release(), a.res.Stats.Close())
	if a.store != nil {
		err = errors.Join(err, a.store.Close())
	}
	return err
}

// childContext is cancelled on SIGINT or SIGTERM. The normal stop signal is the
// shutdown flag in the shared region.
func childContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var gangCmd = &cobra.Command{
	Use:    "gang",
	Short:  "Run one gang (started by run)",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGangProcess(); err != nil {
			logrus.Fatalf("gang %d: %v", childGang, err)
		}
	},
}

func runGangProcess() error {
	a, err := attach()
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()
	if childGang < 0 || childGang >= a.cfg.NumGangs {
		return fmt.Errorf("gang id %d out of range [0, %d)", childGang, a.cfg.NumGangs)
	}

	ctx, stop := childContext()
	defer stop()
	id := sim.GangID(childGang)
	rngs := sim.NewPartitionedRNG(a.cfg.Seed)
	g := gang.New(id, a.h, a.res.Channel, a.res.Stats, gang.Options{Recorder: a.rec})
	g.Init(rngs.ForSubsystem(sim.SubsystemGangInit(id)))
	logrus.WithField("run", childRunID).Debugf("gang %d attached (pid %d)", childGang, os.Getpid())
	return g.Run(ctx, rngs)
}

var policeCmd = &cobra.Command{
	Use:    "police",
	Short:  "Run the police force (started by run)",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPoliceProcess(); err != nil {
			logrus.Fatalf("police: %v", err)
		}
	},
}

func runPoliceProcess() error {
	a, err := attach()
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	ctx, stop := childContext()
	defer stop()
	force := police.NewForce(a.h, a.res.Channel, a.res.Stats, a.rec, sim.NewPartitionedRNG(a.cfg.Seed))
	logrus.WithField("run", childRunID).Debugf("police attached (pid %d)", os.Getpid())
	runErr := force.Run(ctx)
	return errors.Join(runErr, force.Close())
}

func init() {
	for _, c := range []*cobra.Command{gangCmd, policeCmd} {
		c.Flags().StringVar(&childToken, "config-token", "", "Serialized configuration")
		c.Flags().StringVar(&childRunID, "run-id", "", "Run id")
		c.Flags().StringVar(&childShm, "shm", "", "Shared-memory object name")
		c.Flags().IntVar(&childQueueKey, "queue-key", 0, "Message queue key")
		c.Flags().StringVar(&childResultsDB, "results-db", "", "SQLite results database")
		_ = c.MarkFlagRequired("config-token")
		_ = c.MarkFlagRequired("shm")
		_ = c.MarkFlagRequired("queue-key")
		rootCmd.AddCommand(c)
	}
	gangCmd.Flags().IntVar(&childGang, "gang", -1, "Gang id")
	_ = gangCmd.MarkFlagRequired("gang")
}
