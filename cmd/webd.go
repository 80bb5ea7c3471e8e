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

	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/daemon/webd"
	"github.com/rotblauer/catnav/params"
	"github.com/spf13/cobra"
)

var optWebdRegistry string

var webdDefaults = params.DefaultWebDaemonConfig()

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long: `Serves per-device fusion engines over HTTP.

  POST /ingest/{device}   NDJSON or a JSON array of sensor records
  GET  /last/{device}     last estimate as a GeoJSON feature
  GET  /last              every cached device's last estimate
  GET  /recent/{device}   newest estimates, ?n= to limit
  GET  /status, /ping
  WS   /socket            live estimates, environment and floor changes

Set CATNAV_TOKEN to require a token for ingest.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		bindFlags("webd", cmd.Flags())

		engine, err := engineConfig()
		cobra.CheckErr(err)
		config := *webdDefaults
		config.Engine = engine
		config.DataDir = datadir()
		config.BeaconRegistryPath = expandPath(optWebdRegistry)

		server, err := webd.NewWebDaemon(&config)
		cobra.CheckErr(err)

		ctx, cancel := common.InterruptContext(context.Background())
		defer cancel()
		cobra.CheckErr(server.Run(ctx))
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	flags := webdCmd.Flags()
	flags.StringVar(&webdDefaults.Network, "network", webdDefaults.Network, "network to listen on")
	flags.StringVar(&webdDefaults.Address, "address", webdDefaults.Address, "HTTP address to listen on")
	flags.IntVar(&webdDefaults.MaxDevices, "max-devices", webdDefaults.MaxDevices, "live device engines kept in memory")
	flags.DurationVar(&webdDefaults.LastKnownTTL, "last-ttl", webdDefaults.LastKnownTTL, "last known estimate cache TTL")
	flags.StringVar(&optWebdRegistry, "registry", "", "GeoJSON beacon registry")
}
