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

package wastemaputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/wastemap"
	"github.com/spf13/cast"
)

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again.")
	}
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		vars[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return vars, nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// removeShpSupportFiles deletes from the list of files any that do not
// end in `.shp`.
func removeShpSupportFiles(files []string) []string {
	var o []string
	for _, s := range files {
		if strings.HasSuffix(s, ".shp") {
			o = append(o, s)
		}
	}
	return o
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.shp"`)
	}
	f = os.ExpandEnv(f)
	if IsBlob(f) {
		url, err := url.Parse(f)
		if err != nil {
			return f, err
		}
		_, err = OpenBucket(context.TODO(), url.Scheme+"://"+url.Host)
		if err != nil {
			return f, fmt.Errorf("wastemap: error when checking OutputFile location: %v", err)
		}
		return f, nil
	}
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("wastemap: the OutputFile directory doesn't exist: %v", err)
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

// checkCollectionUnits expands any environment variables in the collection
// units and ensures that an acceptable value was specified.
func checkCollectionUnits(u string) (string, error) {
	u = os.ExpandEnv(u)
	if u != "t/week" && u != "tonnes/week" && u != "kg/week" && u != "kg/day" {
		return u, fmt.Errorf("the CollectionUnits variable in the configuration file "+
			"needs to be set to either t/week, kg/week, or kg/day, but is currently set to `%s`",
			u)
	}
	return u, nil
}

// parseRates returns the list of waste generation rates to assess, in
// kg/person/day. If sweep is not empty, it must have the form
// "low:high:step", and the returned rates run from low to high inclusive
// in increments of step. Otherwise the single given rate is returned.
func parseRates(rate float64, sweep string) ([]float64, error) {
	if sweep == "" {
		return []float64{rate}, nil
	}
	parts := strings.Split(sweep, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("the GenerationRates variable must have the form "+
			"'low:high:step' but is currently set to `%s`", sweep)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing GenerationRates: %v", err)
		}
		vals[i] = v
	}
	low, high, step := vals[0], vals[1], vals[2]
	if !(step > 0) || high < low {
		return nil, fmt.Errorf("the GenerationRates variable requires low <= high and "+
			"step > 0 but is currently set to `%s`", sweep)
	}
	var o []float64
	// The step/1e6 tolerance keeps the high endpoint from being dropped
	// to floating-point accumulation error.
	for r := low; r <= high+step/1e6; r += step {
		o = append(o, r)
	}
	return o, nil
}

// WasteMapConfig unmarshals a viper configuration for a waste
// collection assessment, downloading any remote input files.
func WasteMapConfig(cfg *viper.Viper) (*wastemap.Config, error) {
	studyBounds, err := toFloat64SliceE(cfg.Get("StudyBounds"))
	if err != nil {
		return nil, fmt.Errorf("StudyBounds: %v", err)
	}
	if len(studyBounds) != 0 && len(studyBounds) != 4 {
		return nil, fmt.Errorf("parsing study configuration: StudyBounds must have the form [W, S, E, N] but has %d elements", len(studyBounds))
	}
	ctx := context.TODO()
	outChan := outChan()

	var zoneFiles []string
	for _, f := range removeShpSupportFiles(expandStringSlice(cfg.GetStringSlice("ZoneFiles"))) {
		zoneFiles = append(zoneFiles, maybeDownload(ctx, f, outChan))
	}
	var serviceAreaFiles []string
	for _, f := range removeShpSupportFiles(expandStringSlice(cfg.GetStringSlice("ServiceAreaFiles"))) {
		serviceAreaFiles = append(serviceAreaFiles, maybeDownload(ctx, f, outChan))
	}

	c := wastemap.Config{
		PopulationFile:        maybeDownload(ctx, os.ExpandEnv(cfg.GetString("PopulationFile")), outChan),
		PopulationVar:         os.ExpandEnv(cfg.GetString("PopulationVar")),
		GridProj:              os.ExpandEnv(cfg.GetString("GridProj")),
		StudyBounds:           studyBounds,
		StudyMask:             maybeDownload(ctx, os.ExpandEnv(cfg.GetString("StudyMask")), outChan),
		ZoneFiles:             zoneFiles,
		ZoneNameField:         os.ExpandEnv(cfg.GetString("ZoneNameField")),
		ZoneJurisdictionField: os.ExpandEnv(cfg.GetString("ZoneJurisdictionField")),
		Jurisdiction:          os.ExpandEnv(cfg.GetString("Jurisdiction")),
		ServiceAreaFiles:      serviceAreaFiles,
		ServiceAreaNameField:  os.ExpandEnv(cfg.GetString("ServiceAreaNameField")),
		CollectedField:        os.ExpandEnv(cfg.GetString("CollectedField")),
		CollectionUnits:       os.ExpandEnv(cfg.GetString("CollectionUnits")),
		CollectionFile:        maybeDownload(ctx, os.ExpandEnv(cfg.GetString("CollectionFile")), outChan),
		CollectionSheet:       cfg.GetString("CollectionSheet"),
		Statistic:             cfg.GetString("Statistic"),
		MaxCacheEntries:       cfg.GetInt("MaxCacheEntries"),
	}
	return &c, nil
}

func toFloat64SliceE(s interface{}) ([]float64, error) {
	switch v := s.(type) {
	case []float64:
		return v, nil
	case []interface{}:
		o := make([]float64, len(v))
		for i, val := range v {
			switch n := val.(type) {
			case float64:
				o[i] = n
			case int64:
				o[i] = float64(n)
			default:
				return nil, fmt.Errorf("invalid number %#v", val)
			}
		}
		return o, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var o []float64
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			return nil, err
		}
		return o, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid type %#v", s)
	}
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) map[string]string {
	i := cfg.Get(varName)
	switch i.(type) {
	case map[string]string:
		return i.(map[string]string)
	case map[string]interface{}:
		return cast.ToStringMapString(i)
	case string:
		b := bytes.NewBuffer(([]byte)(i.(string)))
		d := json.NewDecoder(b)
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			panic(err)
		}
		return o
	default:
		panic(fmt.Errorf("invalid type for getStringMapString variable %s: %#v", varName, i))
	}
}
