package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/swsync-network/swsync/pkg/metrics"
	"github.com/swsync-network/swsync/pkg/runner"
	"github.com/swsync-network/swsync/pkg/util"
)

var (
	daemonExecute bool
	daemonNow     bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync configured devices on a schedule",
	Long: `Sync every device listed in the configuration on the daemon.schedule
cron schedule, serving Prometheus metrics on /metrics and run status on
/healthz at daemon.listen.

A run that is still going when the next one is due is skipped.

Examples:
  swsync daemon
  swsync daemon --now -x`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.loadConfig()
		if err != nil {
			return err
		}
		names := cfg.DeviceNames()
		if len(names) == 0 {
			return fmt.Errorf("no devices configured")
		}
		if !app.verbose {
			util.SetLogLevel("info")
		}

		schedule, err := cron.ParseStandard(cfg.Daemon.Schedule)
		if err != nil {
			return fmt.Errorf("daemon.schedule %q: %w", cfg.Daemon.Schedule, err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		m := metrics.New()
		r, cleanup, err := buildRunner(ctx, cfg, runner.Options{
			Execute:  cfg.Daemon.Execute || daemonExecute,
			Site:     cfg.Sync.Site,
			Parallel: cfg.Sync.Parallel,
			SSHPort:  cfg.SSH.Port,
			User:     currentUser(),
		}, m)
		if err != nil {
			return err
		}
		defer cleanup()

		status := &daemonStatus{st: runStatus{Schedule: cfg.Daemon.Schedule, Devices: len(names)}}
		logger := cron.PrintfLogger(util.Logger)
		job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
			runID := uuid.NewString()
			log := util.WithField("run_id", runID)
			log.Infof("Sync of %d devices started", len(names))

			start := time.Now()
			reports, err := r.WithRunID(runID).Run(ctx, names)
			status.record(runID, start, reports, err)

			if err != nil {
				log.Errorf("Sync finished with errors: %v", err)
			} else {
				log.Infof("Sync finished in %s", time.Since(start).Round(time.Second))
			}
		}))

		sched := newScheduler(schedule, job, logger)
		sched.Start(daemonNow)

		srv := &http.Server{Addr: cfg.Daemon.Listen, Handler: daemonMux(m, status)}
		errCh := make(chan error, 1)
		go func() {
			util.Infof("Serving metrics on %s", cfg.Daemon.Listen)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err = <-errCh:
		case <-ctx.Done():
			util.Infof("Shutting down")
		}

		sched.Stop()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.Shutdown(shutdownCtx)
		return err
	},
}

func init() {
	addWriteFlags(daemonCmd, &daemonExecute)
	daemonCmd.Flags().BoolVar(&daemonNow, "now", false, "Run once immediately instead of waiting for the first tick")
}

// scheduler runs the sync job on its cron schedule and, when asked, once
// at start. Stop returns after every run it started has finished.
type scheduler struct {
	cron *cron.Cron
	job  cron.Job
	wg   sync.WaitGroup
}

func newScheduler(schedule cron.Schedule, job cron.Job, logger cron.Logger) *scheduler {
	c := cron.New(cron.WithLogger(logger))
	c.Schedule(schedule, job)
	return &scheduler{cron: c, job: job}
}

func (s *scheduler) Start(now bool) {
	s.cron.Start()
	if now {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.job.Run()
		}()
	}
}

func (s *scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func daemonMux(m *metrics.Metrics, status *daemonStatus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := status.snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.LastError != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(snap)
	})
	return mux
}

// runStatus is the outcome of the latest scheduled run.
type runStatus struct {
	Schedule  string    `json:"schedule"`
	Devices   int       `json:"devices"`
	RunID     string    `json:"run_id,omitempty"`
	LastRun   time.Time `json:"last_run,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type daemonStatus struct {
	mu sync.Mutex
	st runStatus
}

func (s *daemonStatus) record(runID string, start time.Time, reports []*runner.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.RunID = runID
	s.st.LastRun = start
	s.st.Failed = nil
	for _, rep := range reports {
		if !rep.Succeeded() {
			s.st.Failed = append(s.st.Failed, rep.Device)
		}
	}
	s.st.LastError = ""
	if err != nil {
		s.st.LastError = err.Error()
	}
}

func (s *daemonStatus) snapshot() runStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.st
	st.Failed = append([]string(nil), s.st.Failed...)
	return st
}
