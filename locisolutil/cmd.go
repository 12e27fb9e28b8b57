/*
Copyright © 2026 the locisol authors.
This file is part of locisol.

locisol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

locisol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with locisol.  If not, see <http://www.gnu.org/licenses/>.
*/


// Package locisolutil contains the command-line interface for locisol.
package locisolutil

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	locisol "github.com/srpankratyev/GIS-Portfolio"
	"github.com/srpankratyev/GIS-Portfolio/costpath"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	// Options are the configuration options available to locisol.
	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GridFile",
			usage: `
              GridFile is the path to the point shapefile holding the
              grid points. It can be a local path, an http(s) URL, or a
              blob storage location (gs://, s3://, or file://).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "IDColumn",
			usage: `
              IDColumn is the name of the integer id column of GridFile.`,
			defaultVal: locisol.DefaultCatalogColumns.ID,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "RegionColumns",
			usage: `
              RegionColumns lists acceptable names for the region code
              column of GridFile. The first one found is used.`,
			defaultVal: locisol.DefaultCatalogColumns.Region,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "CostFile",
			usage: `
              CostFile is the path to the NetCDF cost surface. It accepts
              the same locations as GridFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "CostVariable",
			usage: `
              CostVariable is the name of the cost variable in CostFile.`,
			defaultVal: locisol.DefaultCostVariable,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Offsets",
			usage: `
              Offsets lists the id differences between a grid point and
              its neighbors. It is ignored if RingRadius is greater than 0.`,
			defaultVal: []int{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "RingRadius",
			usage: `
              RingRadius, if greater than 0, sets the neighbors of each
              grid point to all points within RingRadius rows and columns
              of it. RowLength must then also be set.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags(), offsetsCmd.Flags()},
		},
		{
			name: "RowLength",
			usage: `
              RowLength is the number of grid points in each row of the
              grid.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags(), offsetsCmd.Flags()},
		},
		{
			name: "Regions",
			usage: `
              Regions restricts the grid points values are computed for
              to the given region codes. Neighbors in other regions are
              still used.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the output CSV table. It can be a
              blob storage location, in which case the file is uploaded
              after the run.`,
			shorthand:  "o",
			defaultVal: "locisol_hmi.csv",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "ErrorLogFile",
			usage: `
              ErrorLogFile, if set, is where the points without a value
              are listed along with the reason.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "ShapefileOutput",
			usage: `
              ShapefileOutput, if set, is where the results are written as
              a point shapefile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "PathsFile",
			usage: `
              PathsFile, if set, is where the least-cost paths are written
              as a line shapefile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "SummaryFile",
			usage: `
              SummaryFile, if set, is where a YAML summary of the run is
              written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "MetricsFile",
			usage: `
              MetricsFile, if set, is where run metrics are written in the
              Prometheus text format.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the log file. If empty, it is
              OutputFile with the extension changed to .log.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is one of trace, debug, info, warn, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Concurrency",
			usage: `
              Concurrency is the number of path searches that can run at
              once. If 0, the number of processors is used.`,
			shorthand:  "j",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "RateLimit",
			usage: `
              RateLimit, if greater than 0, is the maximum number of path
              searches started per second.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "RateBurst",
			usage: `
              RateBurst is the number of path searches that can start at
              once when RateLimit is set.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "TaskTimeout",
			usage: `
              TaskTimeout limits the time of each path search, for
              example "30s". 0 means no limit.`,
			defaultVal: "0s",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "MaxRetries",
			usage: `
              MaxRetries is the number of times a path search that fails
              with a temporary error is retried.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "RetryInterval",
			usage: `
              RetryInterval is the initial wait between retries.`,
			defaultVal: "500ms",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Margin",
			usage: `
              Margin is the number of raster cells the path search extends
              beyond the start and end points. -1 searches the whole
              raster.`,
			defaultVal: costpath.DefaultMargin,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "CacheDir",
			usage: `
              CacheDir, if set, is a directory where path search results
              are stored so an interrupted run can be resumed.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "CacheEntries",
			usage: `
              CacheEntries is the number of path search results kept in
              memory.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "ProgressInterval",
			usage: `
              ProgressInterval is how often progress is logged. 0 turns
              progress logging off.`,
			defaultVal: "10s",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), configCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("LOCISOL")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
			Cfg.BindEnv(option.name)
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(offsetsCmd)
	Root.AddCommand(configCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("locisol: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "locisol",
	Short: "A local isolation measure for gridded land surfaces.",
	Long: `locisol computes, for every point of a regular grid, the mean least-cost
path cost over a cost surface from the point to a fixed set of neighboring
grid points. Use the subcommands specified below to access the functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'LOCISOL_var' where 'var' is the
name of the variable to be set. Path variables are additionally
allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of locisol.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "locisol v%s\n", locisol.Version)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the isolation measure.",
	Long: `run computes the isolation value of every grid point in GridFile over
the cost surface in CostFile and writes them to OutputFile. Points whose
value cannot be computed are left empty in OutputFile and listed, with the
reason, in ErrorLogFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadRunConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd, cfg, nil)
	},
	DisableAutoGenTag: true,
}

var offsetsCmd = &cobra.Command{
	Use:   "offsets",
	Short: "Print ring neighbor offsets.",
	Long: `offsets prints the id offsets of all grid points within RingRadius rows
and columns of a point on a grid with RowLength points per row, in a
form that can be used as the Offsets option.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := locisol.RingOffsets(Cfg.GetInt("RingRadius"), Cfg.GetInt("RowLength"))
		if err != nil {
			return err
		}
		s := make([]string, len(o))
		for i, v := range o {
			s[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(s, ","))
		return nil
	},
	DisableAutoGenTag: true,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration.",
	Long: `config prints the configuration that run would use, combining defaults,
the configuration file, environment variables, and flags, in TOML format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := configValues(Cfg)
		if err != nil {
			return err
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(values)
	},
	DisableAutoGenTag: true,
}

// configValues returns the value of every option except config, using
// the type of each option's default.
func configValues(cfg *viper.Viper) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	for _, o := range options {
		if o.name == "config" {
			continue
		}
		switch o.defaultVal.(type) {
		case string:
			values[o.name] = cfg.GetString(o.name)
		case []string:
			values[o.name] = stringSlice(cfg.Get(o.name))
		case int:
			values[o.name] = cfg.GetInt(o.name)
		case []int:
			v, err := intSlice(cfg.Get(o.name))
			if err != nil {
				return nil, fmt.Errorf("locisol: reading %s: %v", o.name, err)
			}
			values[o.name] = v
		case float64:
			values[o.name] = cfg.GetFloat64(o.name)
		}
	}
	return values, nil
}
