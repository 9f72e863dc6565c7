package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skyportsystems/incubator-samza/appmaster"
	"github.com/skyportsystems/incubator-samza/cluster"
	"github.com/skyportsystems/incubator-samza/config"
	"github.com/skyportsystems/incubator-samza/httpserver"
	"github.com/skyportsystems/incubator-samza/metrics"
	"github.com/skyportsystems/incubator-samza/protocol"
	"github.com/skyportsystems/incubator-samza/retry"
)

func main() {
	// glog registers its flags on the default set
	flag.CommandLine.Parse([]string{"-logtostderr=true"})

	root := &cobra.Command{
		Use:   "stream-am",
		Short: "Application master for stream-processing jobs",
	}

	var configPath string
	var local bool

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the app master for one job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppMaster(configPath, local)
		},
	}
	run.Flags().StringVarP(&configPath, "config", "c", "", "job config file (yaml)")
	run.Flags().BoolVar(&local, "local", false, "run workers as local processes instead of on a cluster")
	run.MarkFlagRequired("config")
	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAppMaster(configPath string, local bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.LoadEnv()
	// config errors are fatal before any registration is attempted
	if err := cfg.Validate(); err != nil {
		return err
	}

	partitions, err := cfg.InputPartitions()
	if err != nil {
		return err
	}

	if !local {
		return fmt.Errorf("no cluster client configured for this deployment, run with --local")
	}
	localCluster := cluster.NewLocalCluster(protocol.Resource{
		MemoryMB: 32 * 1024,
		CPUCores: runtime.NumCPU(),
	}, cfg.GetInt(config.LocalSlots, cfg.TaskCount()))
	rm := localCluster.ResourceManager()
	nm := localCluster.NodeManager()

	clk := clock.New()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	state := appmaster.NewState(cfg.TaskCount())
	failures := retry.NewFailureController(cfg.RetryCount(), cfg.RetryWindowMS(), clk)

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	port := cfg.HTTPPort()
	trackingURL := ""
	if port > 0 {
		trackingURL = fmt.Sprintf("http://%s:%d/status", host, port)
	}

	taskManager, err := appmaster.NewTaskManager(state, rm, nm, failures, cfg, partitions, &cluster.Credentials{}, trackingURL, m)
	if err != nil {
		return err
	}
	lifecycle := appmaster.NewLifecycle(state, rm, host, port, trackingURL, cfg.ContainerResource())

	loop := appmaster.NewEventLoop(
		state, m, clk,
		time.Duration(cfg.HeartbeatMS())*time.Millisecond,
		time.Duration(cfg.ShutdownTimeoutMS())*time.Millisecond,
		lifecycle, taskManager, appmaster.HeartbeatFunc(localCluster.Tick),
	)
	if err := rm.Start(loop); err != nil {
		return err
	}

	if port > 0 {
		server := httpserver.NewStatusServer(port, state.LatestSnapshot, registry)
		server.Start()
		defer server.Stop()
	}

	go captureInterrupt(loop)

	log.Infof("Starting app master for %v task groups", cfg.TaskCount())
	loop.Run()

	if state.Status() != protocol.JOB_STATUS_SUCCEEDED {
		return fmt.Errorf("job finished with status %v", state.Status())
	}
	return nil
}

func captureInterrupt(loop *appmaster.EventLoop) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	signal.Notify(ch, syscall.SIGTERM)

	<-ch
	log.Infoln("Interruption received. Requesting orderly shutdown...")
	loop.ShutdownRequested()
	signal.Stop(ch)
}
