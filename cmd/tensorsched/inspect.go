package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vectorshelf/tensorsched/internal/config"
	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/executor"
	"github.com/vectorshelf/tensorsched/internal/inspector"
	"github.com/vectorshelf/tensorsched/internal/registry"
	"github.com/vectorshelf/tensorsched/internal/scheduler"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

func newInspectCmd() *cobra.Command {
	var devices int
	var pending int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print current queue depths for a freshly started in-process registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runInspect(cfg, devices, pending)
		},
	}
	cmd.Flags().IntVar(&devices, "devices", 2, "number of distinct devices to populate")
	cmd.Flags().IntVar(&pending, "pending", 5, "DAGs left queued per device (their single op never becomes ready)")
	return cmd
}

// runInspect starts a registry, submits work that deliberately never
// becomes ready (an op whose input key was never supplied, so the
// readiness check never passes), and prints the resulting
// queue depths. It demonstrates Registry.Snapshot, the same call the
// housekeeping reporter makes on a schedule; unlike an op that simply fails
// fast, a never-ready op stays retry-swapping in its queue instead of being
// evicted, so the depth snapshot stays meaningful.
func runInspect(cfg config.Config, devices, pending int) error {
	deps := scheduler.Deps{
		Inspector:  inspector.New(),
		Executor:   executor.NewTensorExecutor(),
		RetrySleep: cfg.RetrySleep,
	}
	reg := registry.New(registry.Config{ThreadsPerQueue: cfg.ThreadsPerQueue}, deps, nil)
	defer reg.Shutdown(context.Background())

	ctx := context.Background()
	for d := 0; d < devices; d++ {
		device := fmt.Sprintf("cpu:%d", d)
		// Ensure the device exists even if no work lands on it yet.
		if _, err := reg.Ensure(ctx, device); err != nil {
			return err
		}
		for i := 0; i < pending; i++ {
			dag := &tensor.DAG{
				Ops: []tensor.Op{{
					Device: device, Kind: tensor.OpScript,
					Inputs: []tensor.Key{"never-supplied"}, Output: "y",
				}},
				Inputs: map[tensor.Key]tensor.Value{},
			}
			if err := reg.Submit(ctx, dagrun.New(dag, nil)); err != nil {
				return err
			}
		}
	}

	depths := reg.Snapshot()
	var deviceNames []string
	for name := range depths {
		deviceNames = append(deviceNames, name)
	}
	sort.Strings(deviceNames)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	header := color.New(color.FgHiYellow, color.Bold).SprintFunc()
	t.AppendHeader(table.Row{header("Device"), header("Queue Depth")})
	for _, name := range deviceNames {
		t.AppendRow(table.Row{name, depths[name]})
	}
	t.Render()
	return nil
}
