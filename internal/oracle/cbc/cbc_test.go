package cbc

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavepick/internal/opt"
	"wavepick/internal/wave"
)

func quiet() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func formulation(t *testing.T, variant opt.Variant) *opt.Formulation {
	t.Helper()
	inst, err := wave.NewInstance(
		[]wave.Order{{0: 3}, {1: 2}},
		[]wave.Aisle{{0: 5}, {1: 5}},
		2, 1, 10,
	)
	require.NoError(t, err)
	return opt.Build(inst, variant)
}

func TestParseSolutionOptimal(t *testing.T) {
	f := formulation(t, opt.VariantPooled)
	sol := `Optimal - objective value -3.00000000
      0 x_0                      1                      -3
      2 y_0                      1                       0
`
	res, err := ParseSolution(strings.NewReader(sol), f)
	require.NoError(t, err)
	assert.Equal(t, opt.StatusOptimal, res.Status)
	assert.Equal(t, []float64{1, 0, 1, 0}, res.Values)
	assert.Equal(t, 3.0, res.Objective)
}

func TestParseSolutionStoppedWithIncumbent(t *testing.T) {
	f := formulation(t, opt.VariantCapacity)
	sol := `Stopped on time - objective value 5.00000000
      0 x_0                      1                      -3
      1 x_1                 0.9999999                  -2
      2 y_0                      1                       0
 **   3 y_1                      1                       0
      4 z_0_0                    3                       0
      5 z_1_1                    2                       0
`
	res, err := ParseSolution(strings.NewReader(sol), f)
	require.NoError(t, err)
	assert.Equal(t, opt.StatusFeasible, res.Status)
	assert.Equal(t, []float64{1, 0.9999999, 1, 1, 3, 2}, res.Values)
	assert.InDelta(t, 5.0, res.Objective, 1e-6)
}

func TestParseSolutionStatuses(t *testing.T) {
	f := formulation(t, opt.VariantPooled)
	cases := []struct {
		first string
		want  opt.Status
	}{
		{"Infeasible - objective value 0.00000000", opt.StatusInfeasible},
		{"Integer infeasible - objective value 0.00000000", opt.StatusInfeasible},
		{"Stopped on time (no integer solution - continuous used)", opt.StatusUnknown},
		{"Stopped on iterations - objective value 4.00000000", opt.StatusFeasible},
		{"Unbounded - objective value 0", opt.StatusUnknown},
	}
	for _, c := range cases {
		res, err := ParseSolution(strings.NewReader(c.first+"\n"), f)
		require.NoError(t, err, c.first)
		assert.Equal(t, c.want, res.Status, c.first)
		if !c.want.HasSolution() {
			assert.Nil(t, res.Values, c.first)
		}
	}
}

func TestParseSolutionErrors(t *testing.T) {
	f := formulation(t, opt.VariantPooled)
	_, err := ParseSolution(strings.NewReader(""), f)
	assert.Error(t, err)
	_, err = ParseSolution(strings.NewReader("Optimal - objective value 3\n 0 x_0 one 0\n"), f)
	assert.Error(t, err)
}

func TestArgs(t *testing.T) {
	got := args("m.lp", "m.sol", opt.OracleParams{TimeLimit: 100 * time.Second, Gap: 0.02, Threads: 4})
	assert.Equal(t, []string{"m.lp", "sec", "100", "ratio", "0.02", "threads", "4", "solve", "solu", "m.sol"}, got)
	assert.Equal(t, []string{"m.lp", "solve", "solu", "m.sol"}, args("m.lp", "m.sol", opt.OracleParams{}))
}

func TestArgsFloorsSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		99600 * time.Millisecond: "99",
		time.Second:              "1",
		400 * time.Millisecond:   "1",
	}
	for limit, want := range cases {
		got := args("m.lp", "m.sol", opt.OracleParams{TimeLimit: limit})
		assert.Equal(t, []string{"m.lp", "sec", want, "solve", "solu", "m.sol"}, got, limit.String())
	}
}

func TestReleaseRemovesWorkDir(t *testing.T) {
	o := New("cbc", t.TempDir(), quiet())
	f := formulation(t, opt.VariantPooled)
	dir, err := o.workDir(f)
	require.NoError(t, err)
	_, err = os.Stat(dir)
	require.NoError(t, err)

	o.Release(f)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSolveWithCBC(t *testing.T) {
	o := New("cbc", t.TempDir(), quiet())
	if !o.Available() {
		t.Skip("cbc not installed")
	}
	f := formulation(t, opt.VariantPooled)
	defer o.Release(f)
	f.SetAisleCount(1)
	res, err := o.Solve(context.Background(), f, opt.OracleParams{TimeLimit: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, opt.StatusOptimal, res.Status)
	assert.InDelta(t, 3.0, res.Objective, 1e-6)
}
