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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/rotblauer/catnav/common"
	"github.com/rotblauer/catnav/geo/beacon"
	"github.com/rotblauer/catnav/params"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catnav",
	Short: "Indoor/outdoor position fusion",
	Long: `catnav fuses inertial, magnetic, barometric, GNSS and BLE beacon
readings into one location estimate per device.

Configuration is read from --config, or $HOME/.catnav/config.{yaml,toml,json},
and CATNAV_* env vars. Engine tunables live under the "engine" key, e.g.

  engine:
    gnss:
      accuracythreshold: 30
    fusion:
      initialfloor: 1
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.catnav/config.yaml)")
	pFlags.String("log-level", "info", "log level: debug, info, warn, error")
	pFlags.String("datadir", params.DefaultDatadirRoot, "data directory for device state")
	cobra.CheckErr(viper.BindPFlag("log-level", pFlags.Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("datadir", pFlags.Lookup("datadir")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(expandPath(cfgFile))
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".catnav"))
		viper.SetConfigName("config")
	}
	viper.SetEnvPrefix("CATNAV")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		slog.Info("Using config file", "file", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(err)
	}
}

func setDefaultSlog(cmd *cobra.Command, args []string) {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", viper.GetString("log-level"))
		level = slog.LevelInfo
	}
	common.SetDefaultSlog(os.Stderr, level)
}

// bindFlags lets the config file and env set any flag not given on the
// command line, under prefix, e.g. webd.address or CATNAV_WEBD_ADDRESS.
func bindFlags(prefix string, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + "." + f.Name
		if f.Changed || !viper.IsSet(key) {
			return
		}
		if err := fs.Set(f.Name, viper.GetString(key)); err != nil {
			slog.Warn("Ignoring config value", "key", key, "error", err)
		}
	})
}

func expandPath(p string) string {
	out, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return out
}

func datadir() string {
	return expandPath(viper.GetString("datadir"))
}

// engineConfig overlays the config file's "engine" section on the defaults.
func engineConfig() (*params.EngineConfig, error) {
	c := params.DefaultEngineConfig()
	if viper.IsSet("engine") {
		if err := viper.UnmarshalKey("engine", c); err != nil {
			return nil, fmt.Errorf("engine config: %w", err)
		}
	}
	return c, c.Validate()
}

// loadRegistry loads a beacon registry, or an empty one for an empty path.
func loadRegistry(path string) (*beacon.Registry, error) {
	if path == "" {
		return beacon.NewRegistry(), nil
	}
	reg, err := beacon.LoadRegistryFile(expandPath(path))
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded beacon registry", "path", path, "beacons", reg.Len())
	return reg, nil
}
