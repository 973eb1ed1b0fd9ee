// Command wavesolve solves wave instance files offline and writes one
// solution file per instance.
//
//	wavesolve -strategy partition -time 600s -out sol/ instances/*.txt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wavepick/internal/config"
	"wavepick/internal/logging"
	"wavepick/internal/opt"
	"wavepick/internal/oracle/bnb"
	"wavepick/internal/oracle/cbc"
	"wavepick/internal/wave"
)

const zstdExt = ".zst"

type options struct {
	cfg      opt.Config
	oracle   string
	cbcPath  string
	workDir  string
	jobs     int
	outDir   string
	exportLP bool
	compress bool
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	o, files, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	log := logrus.NewEntry(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oracle, err := newOracle(o, log)
	if err != nil {
		log.WithError(err).Fatal("oracle unavailable")
	}
	results, err := solveAll(ctx, oracle, o, files, log)
	printSummary(os.Stdout, files, results)
	if err != nil {
		log.WithError(err).Fatal("batch failed")
	}
}

func parseFlags(cfg config.Config, args []string) (options, []string, error) {
	o := options{cfg: cfg.Solver}
	fs := flag.NewFlagSet("wavesolve", flag.ContinueOnError)
	variant := string(o.cfg.Variant)
	fs.StringVar(&o.cfg.Strategy, "strategy", o.cfg.Strategy, "search strategy: binary, partition, scan or dinkelbach")
	fs.StringVar(&variant, "variant", variant, "formulation variant: pooled or capacity")
	fs.DurationVar(&o.cfg.TimeLimit, "time", o.cfg.TimeLimit, "total time limit per instance")
	fs.Float64Var(&o.cfg.Gap, "gap", o.cfg.Gap, "relative MIP gap passed to the oracle")
	fs.IntVar(&o.cfg.Threads, "threads", o.cfg.Threads, "oracle thread hint; 0 lets the oracle decide")
	fs.BoolVar(&o.cfg.PruneAisles, "prune", o.cfg.PruneAisles, "prune redundant aisles from every candidate")
	fs.StringVar(&o.oracle, "oracle", cfg.Oracle.Default, "oracle: bnb or cbc")
	fs.StringVar(&o.cbcPath, "cbc", cfg.Oracle.CBCPath, "cbc executable")
	fs.StringVar(&o.workDir, "workdir", cfg.Oracle.WorkDir, "directory for cbc working files")
	fs.IntVar(&o.jobs, "jobs", 1, "instances solved in parallel")
	fs.StringVar(&o.outDir, "out", ".", "directory for solution files")
	fs.BoolVar(&o.exportLP, "export-lp", false, "also write the formulation of each instance in LP format")
	fs.BoolVar(&o.compress, "zstd", false, "zstd-compress exported LP files")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	o.cfg.Variant = opt.Variant(variant)
	if err := o.cfg.Validate(); err != nil {
		return o, nil, err
	}
	if o.oracle != "bnb" && o.oracle != "cbc" {
		return o, nil, fmt.Errorf("unknown oracle %q", o.oracle)
	}
	if o.jobs < 1 {
		return o, nil, fmt.Errorf("jobs must be >= 1 (got %d)", o.jobs)
	}
	if fs.NArg() == 0 {
		return o, nil, errors.New("usage: wavesolve [flags] instance [instance ...]")
	}
	// outputs are named after the input, so two inputs must not share a base name
	seen := make(map[string]string, fs.NArg())
	for _, path := range fs.Args() {
		base := baseName(path)
		if prev, ok := seen[base]; ok {
			return o, nil, fmt.Errorf("%s and %s would both write %s.sol", prev, path, base)
		}
		seen[base] = path
	}
	return o, fs.Args(), nil
}

func newOracle(o options, log *logrus.Entry) (opt.Oracle, error) {
	if o.oracle == "cbc" {
		c := cbc.New(o.cbcPath, o.workDir, log)
		if !c.Available() {
			return nil, fmt.Errorf("cbc binary %q not found", c.Binary)
		}
		return c, nil
	}
	return bnb.New(log), nil
}

// solveAll solves every file with at most o.jobs running at once. A file that
// cannot be read or written fails the batch; an empty wave does not.
func solveAll(ctx context.Context, oracle opt.Oracle, o options, files []string, log *logrus.Entry) ([]opt.Result, error) {
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return nil, err
	}
	results := make([]opt.Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			res, err := solveFile(ctx, oracle, o, path, log.WithField("instance", filepath.Base(path)))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}

func solveFile(ctx context.Context, oracle opt.Oracle, o options, path string, log *logrus.Entry) (opt.Result, error) {
	inst, err := readInstance(path)
	if err != nil {
		return opt.Result{}, err
	}
	base := baseName(path)
	if o.exportLP {
		ext := ".lp"
		if o.compress {
			ext += zstdExt
		}
		if err := writeOutput(filepath.Join(o.outDir, base+ext), opt.Build(inst, o.cfg.Variant).WriteLP); err != nil {
			return opt.Result{}, fmt.Errorf("export lp: %w", err)
		}
	}

	s, err := opt.NewSolver(oracle, o.cfg, opt.WithLogger(log))
	if err != nil {
		return opt.Result{}, err
	}
	start := time.Now()
	res, err := s.Solve(ctx, inst)
	if err != nil {
		return opt.Result{}, err
	}
	if res.OracleErr != nil {
		log.WithError(res.OracleErr).Warn("oracle fault, writing empty wave")
	}
	err = writeOutput(filepath.Join(o.outDir, base+".sol"), func(w io.Writer) error {
		return wave.WriteSolution(w, res.Solution)
	})
	if err != nil {
		return opt.Result{}, err
	}
	log.WithFields(logrus.Fields{"ratio": res.Ratio, "units": res.Units, "elapsed": time.Since(start).String()}).Info("instance done")
	return res, nil
}

// readInstance parses an instance file, decompressing it first when the
// name ends in .zst.
func readInstance(path string) (*wave.Instance, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var r io.Reader = fh
	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(fh)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return wave.Parse(r)
}

// writeOutput creates path and fills it with fn, zstd-compressed when the
// name ends in .zst.
func writeOutput(path string, fn func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = fh
	var enc *zstd.Encoder
	if strings.HasSuffix(path, zstdExt) {
		enc, err = zstd.NewWriter(fh, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = fh.Close()
			return fmt.Errorf("zstd writer: %w", err)
		}
		w = enc
	}
	if err := fn(w); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		_ = fh.Close()
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			_ = fh.Close()
			return err
		}
	}
	return fh.Close()
}

// baseName strips the directory and the .zst and last extension of path.
func baseName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), zstdExt)
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func printSummary(w io.Writer, files []string, results []opt.Result) {
	for i, path := range files {
		if i >= len(results) {
			break
		}
		r := results[i]
		status := "solved"
		switch {
		case r.OracleErr != nil:
			status = "error"
		case !r.Feasible:
			status = "empty"
		}
		fmt.Fprintf(w, "%s\t%s\tratio=%.4f\tunits=%d\torders=%d\taisles=%d\tcalls=%d\n",
			baseName(path), status, r.Ratio, r.Units, len(r.Solution.Orders), len(r.Solution.Aisles), r.Metrics.OracleCalls)
	}
}
