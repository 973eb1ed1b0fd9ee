// Package cbc runs the COIN-OR CBC command line solver as an oracle. Every
// call writes the formulation in LP format, runs cbc with the time limit,
// gap and thread hint, and reads back the solution file.
package cbc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"wavepick/internal/opt"
)

type Oracle struct {
	// Binary is the cbc executable, looked up in PATH when relative.
	Binary string
	// Dir holds the per-formulation working directories; empty uses the
	// system temp dir.
	Dir string

	log *logrus.Entry

	mu   sync.Mutex
	dirs map[*opt.Formulation]string
}

func New(binary, dir string, log *logrus.Entry) *Oracle {
	if binary == "" {
		binary = "cbc"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Oracle{Binary: binary, Dir: dir, log: log.WithField("oracle", "cbc"), dirs: map[*opt.Formulation]string{}}
}

func (o *Oracle) Name() string { return "cbc" }

// Available reports whether the cbc binary can be found.
func (o *Oracle) Available() bool {
	_, err := exec.LookPath(o.Binary)
	return err == nil
}

// Release removes the working directory of f.
func (o *Oracle) Release(f *opt.Formulation) {
	o.mu.Lock()
	dir, ok := o.dirs[f]
	delete(o.dirs, f)
	o.mu.Unlock()
	if ok {
		if err := os.RemoveAll(dir); err != nil {
			o.log.WithError(err).WithField("dir", dir).Warn("cleanup failed")
		}
	}
}

func (o *Oracle) workDir(f *opt.Formulation) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if dir, ok := o.dirs[f]; ok {
		return dir, nil
	}
	dir, err := os.MkdirTemp(o.Dir, "wavepick-cbc-")
	if err != nil {
		return "", err
	}
	o.dirs[f] = dir
	return dir, nil
}

func (o *Oracle) Solve(ctx context.Context, f *opt.Formulation, p opt.OracleParams) (opt.OracleResult, error) {
	dir, err := o.workDir(f)
	if err != nil {
		return opt.OracleResult{}, fmt.Errorf("cbc workdir: %w", err)
	}
	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	if err := writeFile(lpPath, f.WriteLP); err != nil {
		return opt.OracleResult{}, fmt.Errorf("write lp: %w", err)
	}
	_ = os.Remove(solPath)

	cmd := exec.CommandContext(ctx, o.Binary, args(lpPath, solPath, p)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return opt.OracleResult{Status: opt.StatusUnknown}, nil
		}
		return opt.OracleResult{}, fmt.Errorf("cbc: %w: %s", err, tail(out.String(), 512))
	}
	sol, err := os.Open(solPath)
	if err != nil {
		return opt.OracleResult{}, fmt.Errorf("cbc produced no solution file: %w: %s", err, tail(out.String(), 512))
	}
	defer sol.Close()

	res, err := ParseSolution(sol, f)
	if err != nil {
		return opt.OracleResult{}, err
	}
	o.log.WithFields(logrus.Fields{"status": res.Status.String(), "objective": res.Objective}).Debug("cbc solve")
	return res, nil
}

func args(lpPath, solPath string, p opt.OracleParams) []string {
	a := []string{lpPath}
	// whole seconds, rounded down so cbc never runs past the allowance
	if p.TimeLimit > 0 {
		secs := max(int64(math.Floor(p.TimeLimit.Seconds())), 1)
		a = append(a, "sec", strconv.FormatInt(secs, 10))
	}
	if p.Gap > 0 {
		a = append(a, "ratio", strconv.FormatFloat(p.Gap, 'g', -1, 64))
	}
	if p.Threads > 0 {
		a = append(a, "threads", strconv.Itoa(p.Threads))
	}
	return append(a, "solve", "solu", solPath)
}

func writeFile(path string, fn func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(fh); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// ParseSolution reads a cbc solution file. Variables missing from the file
// are zero. The objective is recomputed from the values so its sign does not
// depend on how cbc reports maximization.
func ParseSolution(r io.Reader, f *opt.Formulation) (opt.OracleResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return opt.OracleResult{}, err
		}
		return opt.OracleResult{}, fmt.Errorf("empty cbc solution")
	}
	res := opt.OracleResult{Status: parseStatus(sc.Text())}
	if !res.Status.HasSolution() {
		return res, nil
	}

	index := make(map[string]int, f.NumVars())
	for i := 0; i < f.NumVars(); i++ {
		index[f.Var(i).Name] = i
	}
	res.Values = make([]float64, f.NumVars())
	for line := 2; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return opt.OracleResult{}, fmt.Errorf("cbc solution line %d: %q", line, sc.Text())
		}
		v, ok := index[fields[1]]
		if !ok {
			continue
		}
		val, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return opt.OracleResult{}, fmt.Errorf("cbc solution line %d: %w", line, err)
		}
		res.Values[v] = val
	}
	if err := sc.Err(); err != nil {
		return opt.OracleResult{}, err
	}
	res.Objective = f.Evaluate(res.Values)
	return res, nil
}

func parseStatus(line string) opt.Status {
	l := strings.ToLower(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(l, "optimal"):
		return opt.StatusOptimal
	case strings.Contains(l, "infeasible"):
		return opt.StatusInfeasible
	case strings.HasPrefix(l, "stopped"):
		if strings.Contains(l, "no integer solution") || !strings.Contains(l, "objective value") {
			return opt.StatusUnknown
		}
		return opt.StatusFeasible
	default:
		return opt.StatusUnknown
	}
}
