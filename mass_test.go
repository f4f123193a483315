package wastemap

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

func TestMassGrid(t *testing.T) {
	const tol = 1.e-10

	data := sparse.ZerosDense(2, 3)
	for i, v := range []float64{1000, 0, -9999, 250, -3, math.NaN()} {
		data.Elements[i] = v
	}
	w := &Window{Data: data, T: Transform{0, 100, 0, 200, 0, -100}, NoData: -9999}

	m := w.MassGrid(0.5)

	// mass = population * rate * 7 / 1000; no-data, negative, and NaN
	// cells all become NaN.
	want := []float64{3.5, 0, math.NaN(), 0.875, math.NaN(), math.NaN()}
	for i, v := range want {
		have := m.Data.Elements[i]
		if math.IsNaN(v) {
			if !math.IsNaN(have) {
				t.Errorf("element %d should be NaN but is %g", i, have)
			}
		} else if different(have, v, tol) {
			t.Errorf("element %d should be %g but is %g", i, v, have)
		}
	}
	if !math.IsNaN(m.NoData) {
		t.Errorf("mass window no-data marker should be NaN but is %g", m.NoData)
	}
	if m.T != w.T {
		t.Errorf("mass window transform should be %v but is %v", w.T, m.T)
	}

	// The input window keeps its original values.
	orig := []float64{1000, 0, -9999, 250, -3}
	for i, v := range orig {
		if w.Data.Elements[i] != v {
			t.Errorf("input element %d was modified from %g to %g", i, v, w.Data.Elements[i])
		}
	}
	if !math.IsNaN(w.Data.Elements[5]) {
		t.Errorf("input element 5 was modified from NaN to %g", w.Data.Elements[5])
	}
}

func TestMassGridLinearity(t *testing.T) {
	const tol = 1.e-12

	data := sparse.ZerosDense(1, 2)
	data.Elements[0] = 120
	data.Elements[1] = 85
	w := &Window{Data: data, T: Transform{0, 100, 0, 100, 0, -100}, NoData: math.NaN()}

	m1 := w.MassGrid(0.6)
	m2 := w.MassGrid(1.2)
	for i := range m1.Data.Elements {
		if different(m2.Data.Elements[i]/m1.Data.Elements[i], 2, tol) {
			t.Errorf("element %d: doubling the rate should double the mass but have %g and %g",
				i, m1.Data.Elements[i], m2.Data.Elements[i])
		}
	}
	if different(m1.Data.Elements[0], 120*0.6*7/1000, tol) {
		t.Errorf("element 0 should be %g but is %g", 120*0.6*7/1000, m1.Data.Elements[0])
	}
}
