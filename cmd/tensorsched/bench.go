package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vectorshelf/tensorsched/internal/config"
	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/executor"
	"github.com/vectorshelf/tensorsched/internal/housekeeping"
	"github.com/vectorshelf/tensorsched/internal/inspector"
	"github.com/vectorshelf/tensorsched/internal/metrics"
	"github.com/vectorshelf/tensorsched/internal/registry"
	"github.com/vectorshelf/tensorsched/internal/scheduler"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

type benchClient struct{}

func (benchClient) Detached() bool { return false }

func newBenchCmd() *cobra.Command {
	var devices int
	var dagsPerDevice int
	var batchSize int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic multi-device DAG workload through the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runBench(cfg, devices, dagsPerDevice, batchSize)
		},
	}
	cmd.Flags().IntVar(&devices, "devices", 2, "number of distinct devices")
	cmd.Flags().IntVar(&dagsPerDevice, "dags-per-device", 30, "single-op DAGs submitted per device")
	cmd.Flags().IntVar(&batchSize, "batch-size", 8, "batchSize for the synthetic model op")
	return cmd
}

// instrumentedExecutor wraps a scheduler.Executor and records per-device
// op/batch counts so bench can report batching effectiveness.
type instrumentedExecutor struct {
	inner scheduler.Executor

	mu              sync.Mutex
	opsByDevice     map[string]int
	batchesByDevice map[string]int
}

func newInstrumentedExecutor(inner scheduler.Executor) *instrumentedExecutor {
	return &instrumentedExecutor{
		inner:           inner,
		opsByDevice:     map[string]int{},
		batchesByDevice: map[string]int{},
	}
}

func (e *instrumentedExecutor) record(device string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opsByDevice[device] += n
	e.batchesByDevice[device]++
}

func (e *instrumentedExecutor) RunSingle(info *dagrun.Info, device string, op tensor.Op) {
	e.record(device, 1)
	e.inner.RunSingle(info, device, op)
}

func (e *instrumentedExecutor) RunBatched(device string, group []executor.BatchMember) {
	e.record(device, len(group))
	e.inner.RunBatched(device, group)
}

func runBench(cfg config.Config, devices, dagsPerDevice, batchSize int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	tensorExec := executor.NewTensorExecutor()
	tensorExec.RegisterModel("identity", func(batch [][]tensor.Value) ([]tensor.Value, error) {
		return batch[0], nil
	})
	instrumented := newInstrumentedExecutor(tensorExec)

	collectors := metrics.New()
	done := make(chan struct{}, devices*dagsPerDevice)
	deps := scheduler.Deps{
		Inspector:  inspector.New(),
		Executor:   instrumented,
		Metrics:    collectors,
		Logger:     logger,
		RetrySleep: cfg.RetrySleep,
		Unblock: func(_ dagrun.Client, _ *dagrun.Info) {
			done <- struct{}{}
		},
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(collectors.Registry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics endpoint unavailable", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	reg := registry.New(registry.Config{ThreadsPerQueue: cfg.ThreadsPerQueue}, deps, logger)
	defer reg.Shutdown(context.Background())

	reporter, err := housekeeping.New(reg, logger, "*/5 * * * * *")
	if err != nil {
		return fmt.Errorf("starting queue reporter: %w", err)
	}
	reporter.Start()
	defer reporter.Stop()

	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	total := devices * dagsPerDevice
	start := time.Now()
	for d := 0; d < devices; d++ {
		device := fmt.Sprintf("gpu:%d", d)
		for i := 0; i < dagsPerDevice; i++ {
			batchDim := 1 + rng.Intn(batchSize-1)
			dag := &tensor.DAG{
				Ops: []tensor.Op{{
					Device: device, Kind: tensor.OpModel, Model: "identity",
					Inputs: []tensor.Key{"x"}, Output: "y",
					BatchSize: batchSize,
				}},
				Inputs: map[tensor.Key]tensor.Value{
					"x": {Shape: []int{batchDim, 4}, Data: make([]float64, batchDim*4)},
				},
			}
			if err := reg.Submit(ctx, dagrun.New(dag, benchClient{})); err != nil {
				return fmt.Errorf("submitting: %w", err)
			}
		}
	}

	for i := 0; i < total; i++ {
		<-done
	}
	elapsed := time.Since(start)

	printReport(instrumented, elapsed, total)
	return nil
}

func printReport(e *instrumentedExecutor, elapsed time.Duration, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var devicesSeen []string
	for d := range e.opsByDevice {
		devicesSeen = append(devicesSeen, d)
	}
	sort.Strings(devicesSeen)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	headerColor := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	t.AppendHeader(table.Row{
		headerColor("Device"), headerColor("Ops"), headerColor("Batches"), headerColor("Avg Batch Size"),
	})
	for _, d := range devicesSeen {
		ops := e.opsByDevice[d]
		batches := e.batchesByDevice[d]
		avg := float64(ops) / float64(batches)
		t.AppendRow(table.Row{d, ops, batches, fmt.Sprintf("%.2f", avg)})
	}
	t.Render()

	fmt.Printf("\n%s %d ops in %s\n", color.GreenString("completed"), total, elapsed.Round(time.Millisecond))
}
