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


package locisolutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	locisol "github.com/srpankratyev/GIS-Portfolio"
)

var validate = validator.New()

// RunConfig holds the settings of a run.
type RunConfig struct {
	GridFile      string   `validate:"required"`
	IDColumn      string   `validate:"required"`
	RegionColumns []string `validate:"min=1,dive,required"`
	CostFile      string   `validate:"required"`
	CostVariable  string   `validate:"required"`

	Offsets locisol.OffsetSet `validate:"min=1,dive,ne=0"`
	Regions []string

	OutputFile      string `validate:"required"`
	ErrorLogFile    string
	ShapefileOutput string
	PathsFile       string
	SummaryFile     string
	MetricsFile     string
	LogFile         string `validate:"required"`
	LogLevel        string `validate:"oneof=trace debug info warn error"`

	Concurrency   int           `validate:"gte=0"`
	RateLimit     float64       `validate:"gte=0"`
	RateBurst     int           `validate:"gte=0"`
	TaskTimeout   time.Duration `validate:"gte=0"`
	MaxRetries    int           `validate:"gte=0"`
	RetryInterval time.Duration `validate:"gte=0"`

	Margin       int `validate:"gte=-1"`
	CacheDir     string
	CacheEntries int `validate:"gte=0"`

	ProgressInterval time.Duration `validate:"gte=0"`
}

// LoadRunConfig reads and checks the run settings in cfg.
func LoadRunConfig(cfg *viper.Viper) (*RunConfig, error) {
	c := &RunConfig{
		GridFile:      os.ExpandEnv(cfg.GetString("GridFile")),
		IDColumn:      cfg.GetString("IDColumn"),
		RegionColumns: stringSlice(cfg.Get("RegionColumns")),
		CostFile:      os.ExpandEnv(cfg.GetString("CostFile")),
		CostVariable:  cfg.GetString("CostVariable"),
		Regions:       stringSlice(cfg.Get("Regions")),
		LogLevel:      strings.ToLower(cfg.GetString("LogLevel")),
		Concurrency:   cfg.GetInt("Concurrency"),
		RateLimit:     cfg.GetFloat64("RateLimit"),
		RateBurst:     cfg.GetInt("RateBurst"),
		MaxRetries:    cfg.GetInt("MaxRetries"),
		Margin:        cfg.GetInt("Margin"),
		CacheDir:      os.ExpandEnv(cfg.GetString("CacheDir")),
		CacheEntries:  cfg.GetInt("CacheEntries"),
	}

	var err error
	for _, d := range []struct {
		name string
		v    *time.Duration
	}{
		{"TaskTimeout", &c.TaskTimeout},
		{"RetryInterval", &c.RetryInterval},
		{"ProgressInterval", &c.ProgressInterval},
	} {
		if *d.v, err = cast.ToDurationE(cfg.Get(d.name)); err != nil {
			return nil, fmt.Errorf("locisol: reading %s: %v", d.name, err)
		}
	}

	if c.Offsets, err = offsets(cfg); err != nil {
		return nil, err
	}

	if c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile")); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"ErrorLogFile", &c.ErrorLogFile},
		{"ShapefileOutput", &c.ShapefileOutput},
		{"PathsFile", &c.PathsFile},
		{"SummaryFile", &c.SummaryFile},
		{"MetricsFile", &c.MetricsFile},
	} {
		if *f.v, err = checkOptionalFile(f.name, cfg.GetString(f.name)); err != nil {
			return nil, err
		}
	}
	c.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), c.OutputFile)

	if err := validate.Struct(c); err != nil {
		return nil, formatValidationError(err)
	}
	return c, nil
}

// offsets returns the ring offsets if RingRadius is set and the Offsets
// list otherwise.
func offsets(cfg *viper.Viper) (locisol.OffsetSet, error) {
	if r := cfg.GetInt("RingRadius"); r > 0 {
		return locisol.RingOffsets(r, cfg.GetInt("RowLength"))
	}
	o, err := intSlice(cfg.Get("Offsets"))
	if err != nil {
		return nil, fmt.Errorf("locisol: reading Offsets: %v", err)
	}
	return locisol.NewOffsetSet(o)
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("locisol: invalid configuration: %v", err)
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("locisol: the %s configuration variable needs to be set", e.Field())
	case "min":
		return fmt.Errorf("locisol: %s needs at least %s value(s)", e.Field(), e.Param())
	case "oneof":
		return fmt.Errorf("locisol: %s must be one of %s but is %v", e.Field(), e.Param(), e.Value())
	default:
		return fmt.Errorf("locisol: invalid %s: failed %s=%s check with value %v", e.Field(), e.Tag(), e.Param(), e.Value())
	}
}

// stringSlice converts a configuration value into a list of strings.
// Flags give lists as "[a,b]".
func stringSlice(v interface{}) []string {
	if s, ok := v.(string); ok {
		s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
		if s == "" {
			return nil
		}
		o := strings.Split(s, ",")
		for i := range o {
			o[i] = strings.TrimSpace(o[i])
		}
		return o
	}
	if o := cast.ToStringSlice(v); len(o) > 0 {
		return o
	}
	return nil
}

// intSlice converts a configuration value into a list of integers.
func intSlice(v interface{}) ([]int, error) {
	if s, ok := v.(string); ok {
		var o []int
		for _, e := range stringSlice(s) {
			i, err := cast.ToIntE(e)
			if err != nil {
				return nil, err
			}
			o = append(o, i)
		}
		return o, nil
	}
	if v == nil {
		return nil, nil
	}
	return cast.ToIntSliceE(v)
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="locisol_hmi.csv")`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		u, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		if _, err = OpenBucket(context.TODO(), u.Scheme+"://"+u.Host); err != nil {
			return f, fmt.Errorf("locisol: error when checking OutputFile location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("locisol: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkOptionalFile is like checkOutputFile but allows f to be empty.
func checkOptionalFile(name, f string) (string, error) {
	if f == "" {
		return "", nil
	}
	f, err := checkOutputFile(f)
	if err != nil {
		return f, fmt.Errorf("%s: %v", name, err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}
