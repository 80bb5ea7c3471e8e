/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/rotblauer/catnav/catz"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/replay"
	"github.com/rotblauer/catnav/state"
	"github.com/spf13/cobra"
)

var (
	optReplayInput    string
	optReplayOutput   string
	optReplayRegistry string
	optReplayState    bool
)

var replayDefaults = replay.DefaultConfig()

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded sensor trace",
	Long: `Replay reads newline-delimited JSON sensor records and writes one
GeoJSON point feature per fused estimate.

Input and output default to stdin and stdout; paths ending in .gz are
(de)compressed. Repeated lines are dropped, and records are reordered by
time within --sort-window.

Examples:

  catnav replay -i walk.ndjson.gz --registry beacons.geojson > walk.geojson
  zcat walk.ndjson.gz | catnav replay --device rye --state
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		bindFlags("replay", cmd.Flags())

		engine, err := engineConfig()
		cobra.CheckErr(err)
		registry, err := loadRegistry(optReplayRegistry)
		cobra.CheckErr(err)

		config := *replayDefaults
		config.Engine = engine
		config.Registry = registry

		if optReplayState {
			store, err := state.Open(datadir(), false)
			cobra.CheckErr(err)
			defer store.Close()
			snap, err := store.LoadSnapshot(config.Device)
			if err == nil {
				config.Restore = &snap
			} else if !errors.Is(err, state.ErrNoSnapshot) {
				cobra.CheckErr(err)
			}
			config.Store = store.ForDevice(config.Device)
		}

		in, err := catz.Open(expandPath(optReplayInput))
		cobra.CheckErr(err)
		defer in.Close()
		out, err := catz.Create(expandPath(optReplayOutput))
		cobra.CheckErr(err)

		ctx, cancel := common.InterruptContext(context.Background())
		defer cancel()

		res, err := replay.Run(ctx, &config, in, out)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			slog.Error("Replay failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Replayed", "device", config.Device, "records", res.Records,
			"estimates", res.Estimates, "last", res.Last.Time)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	flags := replayCmd.Flags()
	flags.StringVarP(&optReplayInput, "input", "i", "-", "input records (NDJSON, optionally .gz); - for stdin")
	flags.StringVarP(&optReplayOutput, "output", "o", "-", "output features (optionally .gz); - for stdout")
	flags.StringVar(&optReplayRegistry, "registry", "", "GeoJSON beacon registry")
	flags.BoolVar(&optReplayState, "state", false, "restore and save the device snapshot in --datadir")
	flags.StringVar(&replayDefaults.Device, "device", replayDefaults.Device, "device name")
	flags.IntVar(&replayDefaults.SortWindow, "sort-window", replayDefaults.SortWindow, "records reordered by time; 0 disables")
	flags.BoolVar(&replayDefaults.Dedupe, "dedupe", replayDefaults.Dedupe, "drop repeated records")
	flags.DurationVar(&replayDefaults.LogInterval, "log-interval", replayDefaults.LogInterval, "progress log period; 0 disables")
	flags.BoolVar(&replayDefaults.Influx, "influx", false, "export estimates to INFLUXDB_URL")
}
