/*
Copyright © 2020 the WasteMap authors.
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

package wastemap

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// Outputter holds the configuration for writing assessment results.
//
// fileName contains the path where the output shapefile will be saved.
//
// outputVariables maps the names of the variables for which data
// should be written to expressions that define how the requested data
// should be calculated. These expressions can utilize variables built
// into the model, user-defined variables, and functions.
//
// modelVariables is automatically generated based on the model variables
// that are required to calculate the requested output variables.
//
// Functions are defined in the outputFunctions variable.
type Outputter struct {
	fileName        string
	outputVariables map[string]string
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter holder and adds a set of default
// output functions. Default functions include:
//
// 'max(a, b, ...)' and 'min(a, b, ...)' which return the largest and
// smallest of their arguments.
//
// 'abs(x)' which returns the absolute value of x.
func NewOutputter(fileName string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"max": func(arg ...interface{}) (interface{}, error) {
			if len(arg) < 2 {
				return nil, fmt.Errorf("wastemap: got %d arguments for function 'max', but needs at least 2", len(arg))
			}
			v := arg[0].(float64)
			for _, a := range arg[1:] {
				v = math.Max(v, a.(float64))
			}
			return v, nil
		},
		"min": func(arg ...interface{}) (interface{}, error) {
			if len(arg) < 2 {
				return nil, fmt.Errorf("wastemap: got %d arguments for function 'min', but needs at least 2", len(arg))
			}
			v := arg[0].(float64)
			for _, a := range arg[1:] {
				v = math.Min(v, a.(float64))
			}
			return v, nil
		},
		"abs": func(arg ...interface{}) (interface{}, error) {
			if len(arg) != 1 {
				return nil, fmt.Errorf("wastemap: got %d arguments for function 'abs', but needs 1", len(arg))
			}
			return (float64)(math.Abs(arg[0].(float64))), nil
		},
	}

	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := Outputter{
		fileName:        fileName,
		outputVariables: outputVariables,
		outputFunctions: defaultOutputFuncs,
	}

	err := o.checkForDerivatives()

	return &o, err
}

// checkForDerivatives identifies the unique input variables that are required
// to calculate the requested output variables. Any user-defined output
// variable that shows up in a subsequent expression is replaced by the
// expression that defines it, so that every expression ends up in terms of
// model variables only.
func (o *Outputter) checkForDerivatives() error {
	o.modelVariables = make([]string, 0, len(o.outputVariables))
	for key, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return fmt.Errorf("wastemap o.outputVariables: %v", err)
		}
		uniqueVars := removeDuplicates(expression.Vars())
		o.modelVariables = append(o.modelVariables, uniqueVars...)
		// For each variable name identified in an output variable expression,
		// check if the variable is defined in terms of other variables within a
		// separate expression. If so, any instance of the variable name in the
		// current expression will be replaced by the expression that defines it.
		var isSuffix bool
		var isPrefix bool
		for _, uniqueVar := range uniqueVars {
			if o.outputVariables[uniqueVar] != "" && o.outputVariables[uniqueVar] != uniqueVar {
				// In order to verify that an instance of a variable name is not part of
				// a longer variable name, the text preceding and following the variable
				// name is analyzed. For example, 'Collected' is not a standalone
				// variable in an expression if it appears as 'Uncollected'.
				splitVal := strings.Split(val, uniqueVar)
				for i := 0; i < len(splitVal)-1; i++ {
					isSuffix, err = checkSuffix(splitVal[i])
					if err != nil {
						return fmt.Errorf("wastemap o.outputVariables: %v", err)
					}
					isPrefix, err = checkPrefix(splitVal[i+1])
					if err != nil {
						return fmt.Errorf("wastemap o.outputVariables: %v", err)
					}
					splitVal[i] = splitVal[i] + uniqueVar
					// For every instance of the variable name that is not part of a
					// longer variable name, replace it by the expression that defines it.
					if !isSuffix && !isPrefix {
						splitVal[i] = strings.Replace(splitVal[i], uniqueVar, "("+o.outputVariables[uniqueVar]+")", -1)
					}
				}
				o.outputVariables[key] = strings.Join(splitVal, "")
				return o.checkForDerivatives()
			}
		}
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	return nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]string)
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = val
		}
	}
	return result
}

func checkPrefix(s string) (bool, error) {
	var isPrefix bool
	var err error
	if string(s) != "" {
		isPrefix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[0]))
		if err != nil {
			return false, err
		}
	} else {
		isPrefix = false
	}
	return isPrefix, nil
}

func checkSuffix(s string) (bool, error) {
	var isSuffix bool
	var err error
	if string(s) != "" {
		isSuffix, err = regexp.MatchString("[a-zA-Z0-9_]", string(s[len(s)-1]))
		if err != nil {
			return false, err
		}
	} else {
		isSuffix = false
	}
	return isSuffix, nil
}

// OutputOptions returns the names of the model variables that can be used
// in output variable expressions, along with descriptions of their meanings
// and units of measurement.
func OutputOptions() (names []string, descriptions []string, units []string) {
	names = []string{"Generated", "Collected", "Uncollected", "Population"}
	descriptions = []string{
		"Mass of waste generated",
		"Reported mass of waste collected",
		"Mass of waste generated but not collected",
		"Population",
	}
	units = []string{"tonnes/week", "tonnes/week", "tonnes/week", "people"}
	return
}

// checkModelVars checks whether the unique input variables required to
// calculate the user-requested output variables are available in the model.
func (o *Outputter) checkModelVars() error {
	outputOps, _, _ := OutputOptions()
	mapOutputOps := make(map[string]uint8)
	for _, n := range outputOps {
		mapOutputOps[n] = 0
	}
	for _, v := range o.modelVariables {
		if _, ok := mapOutputOps[v]; !ok {
			return fmt.Errorf("wastemap: undefined variable name '%s'", v)
		}
	}
	return nil
}

// checkOutputNames checks (1) if any output variable names exceed 10 characters
// and (2) if any output variable names include characters that are unsupported
// in shapefile field names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		long := len(key) > 10
		noCharError, err := regexp.MatchString("^[A-Za-z]\\w*$", key)
		if err != nil {
			panic(err)
		}
		if long && !noCharError {
			return fmt.Errorf("wastemap: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		} else if long {
			return fmt.Errorf("wastemap: output variable name '%s' exceeds 10 characters", key)
		} else if !noCharError {
			return fmt.Errorf("wastemap: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// CheckOutputVars ensures the output variables can be calculated.
func (o *Outputter) CheckOutputVars() error {
	if err := o.checkModelVars(); err != nil {
		return err
	}
	return checkOutputNames(o.outputVariables)
}

// AttachColumns evaluates the output variable expressions in o for each
// service area in r, returning a map from output variable names to slices
// of values in the same order as the service areas the assessment was
// created with.
func (r *Results) AttachColumns(o *Outputter) (map[string][]float64, error) {
	exprs := make(map[string]*govaluate.EvaluableExpression)
	out := make(map[string][]float64)
	for name, val := range o.outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(val, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("wastemap o.outputVariables: %v", err)
		}
		exprs[name] = expression
		out[name] = make([]float64, len(r.ServiceAreas))
	}
	for i := range r.ServiceAreas {
		params := map[string]interface{}{
			"Generated":   r.ServiceAreas[i].Value,
			"Collected":   r.Collected[i],
			"Uncollected": r.ServiceAreas[i].Value - r.Collected[i],
			"Population":  r.Population[i].Value,
		}
		for name, expression := range exprs {
			v, err := expression.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("wastemap: evaluating output variable %s: %v", name, err)
			}
			vv, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("wastemap: output variable %s: expression '%s' does not evaluate to a number", name, o.outputVariables[name])
			}
			out[name][i] = vv
		}
	}
	return out, nil
}

// Output writes the evaluated output columns for the given service areas
// to the shapefile named in o, along with a '.prj' file containing the
// given proj4 projection specification.
func (o *Outputter) Output(r *Results, areas []*ServiceArea, proj4 string) error {
	if len(areas) != len(r.ServiceAreas) {
		return fmt.Errorf("wastemap: writing output: have %d service areas but %d results", len(areas), len(r.ServiceAreas))
	}

	results, err := r.AttachColumns(o)
	if err != nil {
		return err
	}

	vars := make([]string, 0, len(results))
	for v := range results {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	fields := make([]goshp.Field, len(vars)+1)
	fields[0] = goshp.StringField("Name", 40)
	for i, v := range vars {
		fields[i+1] = goshp.FloatField(v, 14, 8)
	}

	// remove extension and replace it with .shp
	fileBase := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	o.fileName = fileBase + ".shp"
	shape, err := shp.NewEncoderFromFields(o.fileName, goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("error creating output shapefile: %v", err)
	}
	for i, a := range areas {
		outFields := make([]interface{}, len(vars)+1)
		outFields[0] = a.Name
		for j, v := range vars {
			outFields[j+1] = results[v][i]
		}
		err = shape.EncodeFields(a.Polygonal, outFields...)
		if err != nil {
			return fmt.Errorf("error writing output shapefile: %v", err)
		}
	}
	shape.Close()

	// Create .prj file
	f, err := os.Create(fileBase + ".prj")
	if err != nil {
		return fmt.Errorf("error creating output prj file: %v", err)
	}
	fmt.Fprint(f, proj4)
	f.Close()

	return nil
}

// DeleteShapefile deletes the named shapefile and its support files
// (.dbf, .shx, and .prj). Files that do not exist are ignored.
func DeleteShapefile(fname string) error {
	base := strings.TrimSuffix(fname, filepath.Ext(fname))
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		if err := os.Remove(base + ext); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// WriteRankingTable writes the given ranking to w as an aligned text table
// with the given title and value column header. Undefined values print as
// 'undef'.
func WriteRankingTable(w io.Writer, title, header string, r Ranking) error {
	fmt.Fprintf(w, "\n%s:\n", title)
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	fmt.Fprintln(tw, strings.Join([]string{"rank", "name", header}, "\t"))
	for i, e := range r {
		v := "undef"
		if !math.IsNaN(e.Value) {
			v = fmt.Sprintf("%.3g", e.Value)
		}
		fmt.Fprintln(tw, strings.Join([]string{strconv.Itoa(i + 1), e.Name, v}, "\t"))
	}
	return tw.Flush()
}
