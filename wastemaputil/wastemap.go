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
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/wastemap"
	"github.com/spf13/cobra"
)

// Run runs a waste collection assessment.
//
// CobraCommand is the cobra.Command instance where Run is called from.
// It is needed to direct logging and result tables to the command output.
//
// LogFile is the path to the desired logfile location. It can include
// environment variables.
//
// OutputFile is the path to the desired output shapefile location. It can
// include environment variables.
//
// OutputVariables specifies which model variables should be included in the
// output file.
//
// rates gives the per-capita waste generation rates to assess, in
// kg/person/day. Zone and deficit rankings are reported for every rate, and
// the output shapefile holds the results for the last one.
//
// AssessmentData is the path to the location of the saved assessment inputs,
// or the location where they should be saved if the file doesn't already
// exist. If it is empty, the inputs are loaded from the source files and
// not saved.
//
// config specifies the assessment input files and options.
func Run(CobraCommand *cobra.Command, LogFile, OutputFile string, OutputVariables map[string]string,
	rates []float64, AssessmentData string, config *wastemap.Config) error {

	startTime := time.Now()

	if len(rates) == 0 {
		return fmt.Errorf("wastemap: no generation rates specified")
	}

	var upload uploader

	// Send log messages to the command output and the log file.
	logfile, err := os.Create(upload.maybeUpload(LogFile))
	if err != nil {
		return fmt.Errorf("wastemap: problem creating log file: %v", err)
	}
	defer logfile.Close()
	mw := io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	log.SetOutput(mw)
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	logrus.SetOutput(mw)

	o, err := wastemap.NewOutputter(upload.maybeUpload(OutputFile), OutputVariables, nil)
	if err != nil {
		return err
	}
	log.Println("Parsing output variable expressions...")
	if err := o.CheckOutputVars(); err != nil {
		return err
	}

	if upload.err != nil {
		return upload.err
	}

	ctx := context.TODO()
	var a *wastemap.Assessment
	if AssessmentData != "" {
		if _, err := os.Stat(AssessmentData); err == nil {
			log.Println("Loading saved assessment inputs...")
			r, err := os.Open(AssessmentData)
			if err != nil {
				return fmt.Errorf("problem opening file to load AssessmentData: %v", err)
			}
			a, err = wastemap.LoadAssessment(r)
			if err != nil {
				return err
			}
			r.Close()
		}
	}
	if a == nil {
		log.Println("Loading assessment inputs...")
		a, err = wastemap.NewAssessment(ctx, config)
		if err != nil {
			return err
		}
		if AssessmentData != "" && !IsBlob(AssessmentData) {
			w, err := os.Create(AssessmentData)
			if err != nil {
				return fmt.Errorf("problem creating file to save AssessmentData: %v", err)
			}
			if err := a.Save(w); err != nil {
				return err
			}
			w.Close()
		}
	}

	var results *wastemap.Results
	for _, rate := range rates {
		results, err = a.Run(ctx, rate)
		if err != nil {
			return err
		}
		title := fmt.Sprintf("Estimated waste generation by zone at %g kg/person/day", rate)
		if err := wastemap.WriteRankingTable(mw, title, "tonnes/week", results.ZoneGeneration); err != nil {
			return err
		}
		title = fmt.Sprintf("Collection deficit by service area at %g kg/person/day", rate)
		if err := wastemap.WriteRankingTable(mw, title, "tonnes/week", results.Deficit); err != nil {
			return err
		}
	}

	log.Println("Writing output shapefile...")
	if err := o.Output(results, a.ServiceAreas(), a.Proj()); err != nil {
		return err
	}
	if err := upload.uploadOutput(); err != nil {
		return err
	}

	elapsedTime := time.Since(startTime)
	log.Printf("Elapsed time: %f hours", elapsedTime.Hours())

	return nil
}
