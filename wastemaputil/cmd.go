/*
Copyright © 2019 the WasteMap authors.
This file is part of WasteMap.

WasteMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WasteMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WasteMap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package wastemaputil holds the command-line interface for WasteMap and
// the helpers it uses for configuration, downloading, and uploading.
package wastemaputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/wastemap"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to WasteMap.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GenerationRate",
			usage: `
              GenerationRate is the assumed per-capita waste generation
              rate in kg/person/day. It is ignored if GenerationRates
              is specified.`,
			defaultVal: 0.6,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "GenerationRates",
			usage: `
              GenerationRates specifies a sweep of per-capita waste
              generation rates to assess, in the form 'low:high:step'
              where all values are in kg/person/day. If it is empty,
              only GenerationRate is assessed.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PopulationFile",
			usage: `
              PopulationFile is the path to the NetCDF raster holding gridded
              population counts, in people per grid cell. The path can include
              environment variables.`,
			defaultVal: "${GOPATH}/src/github.com/spatialmodel/wastemap/testdata/testPopulation.ncf",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PopulationVar",
			usage: `
              PopulationVar is the name of the variable in PopulationFile that
              holds the population counts.`,
			defaultVal: "population",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "GridProj",
			usage: `
              GridProj gives projection info for the population raster in
              Proj4 or WKT format. Zone and service area geometries are
              reprojected to this projection before area weighting.`,
			defaultVal: "+proj=utm +zone=36 +datum=WGS84 +units=m +no_defs",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "StudyBounds",
			usage: `
              StudyBounds gives the extent of the study area in the
              form [W, S, E, N], in the units of the raster projection.
              Only the part of the raster within the study area is read.
              If it is empty, StudyMask must be specified instead.`,
			defaultVal: []float64{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "StudyMask",
			usage: `
              StudyMask is the path to a GeoJSON file holding a polygon
              that delimits the study area. If it is specified, it takes
              precedence over StudyBounds. The path can include environment
              variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ZoneFiles",
			usage: `
              ZoneFiles are the paths to the shapefiles holding waste
              collection zone polygons. The mapping projection of each
              shapefile is read from its .prj file. Can include environment
              variables.`,
			defaultVal: []string{"${GOPATH}/src/github.com/spatialmodel/wastemap/testdata/testZones.shp"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ZoneNameField",
			usage: `
              ZoneNameField is the name of the attribute column in ZoneFiles
              that holds zone names.`,
			defaultVal: "NAME",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ZoneJurisdictionField",
			usage: `
              ZoneJurisdictionField is the name of the attribute column in
              ZoneFiles that holds the administrative jurisdiction each zone
              belongs to. If it is empty, zones are not filtered by
              jurisdiction.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Jurisdiction",
			usage: `
              Jurisdiction limits the assessment to zones whose
              ZoneJurisdictionField attribute exactly matches this value.
              It is ignored if ZoneJurisdictionField is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ServiceAreaFiles",
			usage: `
              ServiceAreaFiles are the paths to the shapefiles holding waste
              collection service area polygons. Can include environment
              variables.`,
			defaultVal: []string{"${GOPATH}/src/github.com/spatialmodel/wastemap/testdata/testServiceAreas.shp"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ServiceAreaNameField",
			usage: `
              ServiceAreaNameField is the name of the attribute column in
              ServiceAreaFiles that holds service area names.`,
			defaultVal: "NAME",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CollectedField",
			usage: `
              CollectedField is the name of the attribute column in
              ServiceAreaFiles that holds the reported amount of waste
              collected in each service area, in CollectionUnits. It is
              ignored if CollectionFile is specified.`,
			defaultVal: "COLLECTED",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CollectionUnits",
			usage: `
              CollectionUnits gives the units that the reported collection
              amounts are in. Acceptable values are 't/week', 'kg/week',
              and 'kg/day'.`,
			defaultVal: "t/week",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CollectionFile",
			usage: `
              CollectionFile is the path to an xlsx workbook holding reported
              waste collection amounts by service area name. If it is
              specified, it takes precedence over CollectedField. The first
              column of each row holds the service area name and the second
              holds the amount collected, in CollectionUnits. The path can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CollectionSheet",
			usage: `
              CollectionSheet is the name of the worksheet in CollectionFile
              that holds the reported collection amounts.`,
			defaultVal: "Sheet1",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Statistic",
			usage: `
              Statistic specifies how raster cell values are aggregated over
              each zone. Valid options are "sum", "mean", "min", "max", and
              "count".`,
			defaultVal: "sum",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MaxCacheEntries",
			usage: `
              MaxCacheEntries is the maximum number of assessment results to
              hold in the in-memory cache.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "AssessmentData",
			usage: `
              AssessmentData is the path to the location of the saved
              assessment inputs (the population window, zones, and service
              areas), or the location where they should be saved if the file
              doesn't already exist. If it is empty, the inputs are loaded
              from the source files on every run and not saved. The path can
              include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output shapefile location.
              It can include environment variables.`,
			defaultVal: "wastemap_output.shp",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved in
              the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which model variables should be included in the
              output file. It can include environment variables.`,
			defaultVal: map[string]string{
				"Generated": "Generated",
				"Collected": "Collected",
				"Deficit":   "Generated - Collected",
			},
			flagsets: []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("WASTEMAP")

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
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case []float64, map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
}

// outChan returns a channel printing to standard output.
func outChan() chan string {
	outChan := make(chan string)
	go func() {
		for {
			msg := <-outChan
			fmt.Printf(msg)
		}
	}()
	return outChan
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("wastemap: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "wastemap",
	Short: "A solid waste collection assessment model.",
	Long: `WasteMap is a spatial model for assessing municipal solid waste
generation and collection coverage.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'WASTEMAP_var'
where 'var' is the name of the variable to be set. Many configuration
variables are additionally allowed to contain environment variables within
them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of WasteMap.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("WasteMap v%s\n", wastemap.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that runs a waste collection assessment.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an assessment.",
	Long: `run loads the population raster, waste collection zones, and service
areas, estimates waste generation at one or more per-capita generation
rates, and writes out zone and service area totals, generation rankings,
and collection deficits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outChan := outChan()

		cfg, err := WasteMapConfig(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		outputVars, err := checkOutputVars(GetStringMapString("OutputVariables", Cfg))
		if err != nil {
			return err
		}
		cfg.CollectionUnits, err = checkCollectionUnits(cfg.CollectionUnits)
		if err != nil {
			return err
		}
		rates, err := parseRates(Cfg.GetFloat64("GenerationRate"), Cfg.GetString("GenerationRates"))
		if err != nil {
			return err
		}

		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			outputFile,
			outputVars,
			rates,
			maybeDownload(context.TODO(), os.ExpandEnv(Cfg.GetString("AssessmentData")), outChan),
			cfg)
	},
	DisableAutoGenTag: true,
}
