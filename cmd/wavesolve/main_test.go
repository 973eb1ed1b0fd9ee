package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavepick/internal/config"
	"wavepick/internal/logging"
	"wavepick/internal/opt"
	"wavepick/internal/oracle/bnb"
	"wavepick/internal/wave"
)

const twoByTwo = `2 2 2
1 0 3
1 1 2
1 0 5
1 1 5
1 10
`

func TestParseFlags(t *testing.T) {
	o, files, err := parseFlags(config.Default(), []string{"-strategy", "scan", "-variant", "capacity", "-time", "30s", "-jobs", "3", "a.txt", "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, opt.StrategyScan, o.cfg.Strategy)
	assert.Equal(t, opt.VariantCapacity, o.cfg.Variant)
	assert.Equal(t, 30*time.Second, o.cfg.TimeLimit)
	assert.Equal(t, 3, o.jobs)
	assert.Equal(t, "bnb", o.oracle)
	assert.Equal(t, []string{"a.txt", "b.txt"}, files)
}

func TestParseFlagsErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"-strategy", "greedy", "a.txt"},
		{"-oracle", "highs", "a.txt"},
		{"-jobs", "0", "a.txt"},
		{"-time", "0s", "a.txt"},
	}
	for _, args := range cases {
		_, _, err := parseFlags(config.Default(), args)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestParseFlagsRejectsSharedBaseName(t *testing.T) {
	_, _, err := parseFlags(config.Default(), []string{"a/x.txt", "b/x.txt"})
	assert.ErrorContains(t, err, "x.sol")
	_, _, err = parseFlags(config.Default(), []string{"x.txt", "x.txt.zst"})
	assert.Error(t, err)

	_, files, err := parseFlags(config.Default(), []string{"a/x.txt", "a/y.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/x.txt", "a/y.txt"}, files)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "instance_0001", baseName("/data/instance_0001.txt"))
	assert.Equal(t, "instance_0001", baseName("instance_0001.txt.zst"))
	assert.Equal(t, "plain", baseName("plain"))
}

func TestWriteOutputCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.lp.zst")
	require.NoError(t, writeOutput(path, func(w io.Writer) error {
		_, err := w.Write([]byte("Maximize\n obj: x\nEnd\n"))
		return err
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	out, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "Maximize\n obj: x\nEnd\n", string(out))
}

func TestSolveAll(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(plain, []byte(twoByTwo), 0o644))
	compressed := filepath.Join(dir, "b.txt.zst")
	require.NoError(t, writeOutput(compressed, func(w io.Writer) error {
		_, err := w.Write([]byte(twoByTwo))
		return err
	}))

	o, files, err := parseFlags(config.Default(), []string{"-jobs", "2", "-time", "60s", "-export-lp", "-zstd", "-out", filepath.Join(dir, "out"), plain, compressed})
	require.NoError(t, err)
	log := logging.Discard()
	results, err := solveAll(context.Background(), bnb.New(log), o, files, log)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, name := range []string{"a", "b"} {
		assert.True(t, results[i].Feasible, name)
		assert.Equal(t, 3.0, results[i].Ratio, name)

		fh, err := os.Open(filepath.Join(dir, "out", name+".sol"))
		require.NoError(t, err)
		sol, err := wave.ParseSolution(fh)
		fh.Close()
		require.NoError(t, err)
		assert.Equal(t, []int{0}, sol.Orders, name)
		assert.Equal(t, []int{0}, sol.Aisles, name)

		_, err = os.Stat(filepath.Join(dir, "out", name+".lp.zst"))
		assert.NoError(t, err, name)
	}

	var buf bytes.Buffer
	printSummary(&buf, files, results)
	assert.Contains(t, buf.String(), "a\tsolved\tratio=3.0000")
	assert.Contains(t, buf.String(), "b\tsolved\tratio=3.0000")
}

func TestSolveAllMissingFile(t *testing.T) {
	o, files, err := parseFlags(config.Default(), []string{"-out", t.TempDir(), "missing.txt"})
	require.NoError(t, err)
	log := logging.Discard()
	_, err = solveAll(context.Background(), bnb.New(log), o, files, log)
	assert.Error(t, err)
}
