package wave

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoByTwo(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewInstance(
		[]Order{{0: 3}, {1: 2}},
		[]Aisle{{0: 5}, {1: 5}},
		2, 1, 10,
	)
	require.NoError(t, err)
	return inst
}

func TestValidateRejectsBadInstances(t *testing.T) {
	cases := map[string]*Instance{
		"lb above ub":    {NItems: 1, WaveSizeLB: 5, WaveSizeUB: 4},
		"negative bound": {NItems: 1, WaveSizeLB: -1, WaveSizeUB: 4},
		"item range":     {NItems: 1, Orders: []Order{{3: 1}}, WaveSizeUB: 4},
		"zero quantity":  {NItems: 1, Aisles: []Aisle{{0: 0}}, WaveSizeUB: 4},
		"too many items": {NItems: 1 << 62, WaveSizeUB: 4},
	}
	for name, inst := range cases {
		t.Run(name, func(t *testing.T) {
			err := inst.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInstance))
		})
	}
	var nilInst *Instance
	assert.ErrorIs(t, nilInst.Validate(), ErrInvalidInstance)
}

func TestFeasibleAndRatio(t *testing.T) {
	inst := twoByTwo(t)

	both := Solution{Orders: []int{0, 1}, Aisles: []int{0, 1}}
	assert.True(t, inst.Feasible(both))
	assert.InDelta(t, 2.5, inst.Ratio(both), 1e-12)

	single := Solution{Orders: []int{0}, Aisles: []int{0}}
	assert.True(t, inst.Feasible(single))
	assert.InDelta(t, 3.0, inst.Ratio(single), 1e-12)

	// item 1 is only in aisle 1
	assert.False(t, inst.Feasible(Solution{Orders: []int{1}, Aisles: []int{0}}))
}

func TestEmptySelectionsGuard(t *testing.T) {
	inst := twoByTwo(t)
	for _, s := range []Solution{
		{},
		{Orders: []int{0}},
		{Aisles: []int{0}},
	} {
		assert.False(t, inst.Feasible(s))
		assert.Equal(t, 0.0, inst.Ratio(s))
	}
}

func TestFeasibleWaveBand(t *testing.T) {
	inst := twoByTwo(t)
	inst.WaveSizeLB = 4
	assert.False(t, inst.Feasible(Solution{Orders: []int{0}, Aisles: []int{0}}), "3 units below LB 4")
	inst.WaveSizeLB, inst.WaveSizeUB = 1, 4
	assert.False(t, inst.Feasible(Solution{Orders: []int{0, 1}, Aisles: []int{0, 1}}), "5 units above UB 4")
}

func TestFeasibleIgnoresDuplicatesRejectsUnknownIDs(t *testing.T) {
	inst := twoByTwo(t)
	dup := Solution{Orders: []int{0, 0}, Aisles: []int{0, 0}}
	assert.True(t, inst.Feasible(dup))
	assert.InDelta(t, 3.0, inst.Ratio(dup), 1e-12)
	assert.False(t, inst.Feasible(Solution{Orders: []int{7}, Aisles: []int{0}}))
	assert.False(t, inst.Feasible(Solution{Orders: []int{0}, Aisles: []int{-1}}))
}

func TestRatioScalesWithDoubledOrders(t *testing.T) {
	inst := twoByTwo(t)
	s := Solution{Orders: []int{0}, Aisles: []int{0}}
	base := inst.Ratio(s)

	doubled, err := NewInstance(
		[]Order{{0: 6}, {1: 4}},
		[]Aisle{{0: 10}, {1: 10}},
		2, 2*inst.WaveSizeLB, 2*inst.WaveSizeUB,
	)
	require.NoError(t, err)
	assert.True(t, doubled.Feasible(s))
	assert.GreaterOrEqual(t, doubled.Ratio(s), base)
}

func TestParseWriteRoundTrip(t *testing.T) {
	text := "2 2 2\n1 0 3\n1 1 2\n1 0 5\n1 1 5\n1 10\n"
	inst, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	assert.Len(t, inst.Orders, 2)
	assert.Len(t, inst.Aisles, 2)
	assert.Equal(t, 3, inst.Orders[0][0])
	assert.Equal(t, 10, inst.WaveSizeUB)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, inst))
	assert.Equal(t, text, buf.String())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("2 2 2\n1 0 3\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("1 1 1\n1 0 x\n1 0 1\n0 1\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("1 1 1\n1 0 1\n1 0 1\n5 1\n"))
	assert.ErrorIs(t, err, ErrInvalidInstance)
}

func TestParseRejectsOversizedCounts(t *testing.T) {
	cases := map[string]string{
		"orders":        "4611686018427387904 1 0\n",
		"items":         "0 4611686018427387904 0\n0 1\n",
		"aisles":        "0 1 4611686018427387904\n",
		"order entries": "1 1 0\n4611686018427387904 0 1\n0 1\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = Parse(strings.NewReader(text)) })
			assert.ErrorIs(t, err, ErrInvalidInstance)
		})
	}
}

func TestParseLimited(t *testing.T) {
	text := "2 2 2\n1 0 3\n1 1 2\n1 0 5\n1 1 5\n1 10\n"
	_, err := ParseLimited(strings.NewReader(text), Limits{MaxItems: 2, MaxOrders: 2, MaxAisles: 2})
	require.NoError(t, err)
	_, err = ParseLimited(strings.NewReader(text), Limits{MaxItems: 2, MaxOrders: 1, MaxAisles: 2})
	assert.ErrorIs(t, err, ErrInvalidInstance)
	assert.ErrorContains(t, err, "2 orders exceeds the limit of 1")
	_, err = ParseLimited(strings.NewReader(text), Limits{MaxItems: 1, MaxOrders: 2, MaxAisles: 2})
	assert.ErrorContains(t, err, "2 items exceeds the limit of 1")
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits.Validate())
	assert.NoError(t, Limits{MaxItems: 1, MaxOrders: 1, MaxAisles: 1}.Validate())
	assert.Error(t, Limits{}.Validate())
	assert.Error(t, Limits{MaxItems: DefaultLimits.MaxItems + 1, MaxOrders: 1, MaxAisles: 1}.Validate())
}

func TestNewInstanceRejectsHugeItemCount(t *testing.T) {
	_, err := NewInstance(nil, nil, 1<<62, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidInstance)
}

func TestSolutionFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSolution(&buf, Solution{Orders: []int{3, 1, 3}, Aisles: []int{2}}))
	assert.Equal(t, "2\n1\n3\n1\n2\n", buf.String())
	s, err := ParseSolution(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, s.Orders)
	assert.Equal(t, []int{2}, s.Aisles)
}
