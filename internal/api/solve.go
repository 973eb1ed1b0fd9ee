package api

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "wavepick/internal/metrics"
    "wavepick/internal/model"
    "wavepick/internal/opt"
    "wavepick/internal/wave"
)

// effectiveConfig resolves service defaults, then tenant overrides, then the
// request options.
func (s *Server) effectiveConfig(ctx context.Context, tenant string, o model.WaveOptions) (opt.Config, string, error) {
    cfg, oracle := s.Cfg.Solver, s.Cfg.Oracle.Default
    stored, err := s.Store.GetSolverConfig(ctx, tenant)
    if err != nil {
        return cfg, oracle, fmt.Errorf("load tenant solver config: %w", err)
    }
    over, err := decodeOptions(stored)
    if err != nil {
        s.Log.WithError(err).WithField("tenant", tenant).Warn("ignoring invalid tenant solver config")
    } else {
        cfg, oracle = applyOptions(cfg, oracle, over)
    }
    cfg, oracle = applyOptions(cfg, oracle, o)
    if err := cfg.Validate(); err != nil {
        return cfg, oracle, err
    }
    if _, ok := s.Oracles[oracle]; !ok {
        return cfg, oracle, fmt.Errorf("oracle %q is not available", oracle)
    }
    return cfg, oracle, nil
}

type solveJob struct {
    wave   model.Wave
    inst   *wave.Instance
    cfg    opt.Config
    oracle string
}

// newWave records a queued wave for inst.
func (s *Server) newWave(ctx context.Context, tenant, name string, inst *wave.Instance, cfg opt.Config, oracle string) (model.Wave, error) {
    var text strings.Builder
    if err := wave.Write(&text, inst); err != nil {
        return model.Wave{}, err
    }
    w := model.Wave{
        TenantID:     tenant,
        Name:         name,
        Status:       model.WaveQueued,
        Strategy:     cfg.Strategy,
        Variant:      string(cfg.Variant),
        Oracle:       oracle,
        NOrders:      len(inst.Orders),
        NAisles:      len(inst.Aisles),
        NItems:       inst.NItems,
        WaveSizeLB:   inst.WaveSizeLB,
        WaveSizeUB:   inst.WaveSizeUB,
        Orders:       []int{},
        Aisles:       []int{},
        InstanceText: text.String(),
    }
    return s.Store.CreateWave(ctx, w)
}

// runWave solves one wave and stores, publishes and announces the result.
// At most Server.MaxConcurrentSolves run at once; the rest wait queued.
func (s *Server) runWave(job solveJob) model.Wave {
    s.slots <- struct{}{}
    defer func() { <-s.slots }()
    metrics.SolvesInFlight.Inc()
    defer metrics.SolvesInFlight.Dec()

    w := job.wave
    log := s.Log.WithFields(logrus.Fields{"wave": w.ID, "tenant": w.TenantID})
    bg := context.Background()

    w.Status = model.WaveRunning
    if err := s.Store.UpdateWave(bg, w); err != nil {
        log.WithError(err).Warn("mark running")
    }
    s.Broker.Publish(w.ID, SSEEvent{Type: EventStatus, Data: statusData(w)})

    solver, err := opt.NewSolver(s.Oracles[job.oracle], job.cfg,
        opt.WithLogger(log),
        opt.WithObserver(metrics.ObserveStep),
        opt.WithObserver(func(st opt.Step) {
            s.Broker.Publish(w.ID, SSEEvent{Type: EventStep, Data: stepData(st)})
        }),
    )
    var res opt.Result
    if err == nil {
        ctx, cancel := context.WithTimeout(bg, solveTimeout(job.cfg))
        res, err = solver.Solve(ctx, job.inst)
        cancel()
    }
    now := time.Now().UTC()
    w.CompletedAt = &now
    switch {
    case err != nil:
        w.Status, w.Error = model.WaveFailed, err.Error()
    case res.OracleErr != nil:
        w.Status, w.Error = model.WaveFailed, res.OracleErr.Error()
    case res.Feasible:
        w.Status = model.WaveSolved
        w.Orders, w.Aisles = res.Solution.Orders, res.Solution.Aisles
        w.Units, w.Ratio = res.Units, res.Ratio
    default:
        w.Status = model.WaveEmpty
    }
    if err := s.Store.UpdateWave(bg, w); err != nil {
        log.WithError(err).Error("store wave result")
    }

    mx := res.Metrics
    opt.RecordMetrics(w.TenantID, w.ID, mx)
    if err := s.Store.SaveSearchMetrics(bg, w.TenantID, w.ID, mx.ToMap()); err != nil {
        log.WithError(err).Warn("store search metrics")
    }
    metrics.ObserveSolve(w.Status, job.cfg.Strategy, job.oracle, mx.Elapsed, w.Ratio)

    s.Broker.Publish(w.ID, SSEEvent{Type: EventStatus, Data: statusData(w)})
    s.Pub.EmitWave(bg, w)
    log.WithFields(logrus.Fields{"status": w.Status, "ratio": w.Ratio, "calls": mx.OracleCalls}).Info("wave finished")
    return w
}

// safeRunWave is runWave with a panic turned into a failed wave, so a fault
// in one solve never takes the process down.
func (s *Server) safeRunWave(job solveJob) (w model.Wave) {
    defer func() {
        if r := recover(); r != nil {
            w = s.failWave(job.wave, fmt.Sprintf("internal error: %v", r))
        }
    }()
    return s.runWave(job)
}

// failWave records w as failed with msg and announces it.
func (s *Server) failWave(w model.Wave, msg string) model.Wave {
    bg := context.Background()
    log := s.Log.WithFields(logrus.Fields{"wave": w.ID, "tenant": w.TenantID})
    log.WithField("error", msg).Error("solve aborted")
    now := time.Now().UTC()
    w.CompletedAt = &now
    w.Status, w.Error = model.WaveFailed, msg
    w.Orders, w.Aisles, w.Units, w.Ratio = []int{}, []int{}, 0, 0
    if err := s.Store.UpdateWave(bg, w); err != nil {
        log.WithError(err).Error("store failed wave")
    }
    s.Broker.Publish(w.ID, SSEEvent{Type: EventStatus, Data: statusData(w)})
    s.Pub.EmitWave(bg, w)
    return w
}

func stepData(st opt.Step) map[string]any {
    return map[string]any{
        "seq":        st.Seq,
        "lb":         st.Lb,
        "ub":         st.Ub,
        "outcome":    st.Outcome,
        "objective":  st.Objective,
        "units":      st.Units,
        "aisles":     st.Aisles,
        "ratio":      st.Ratio,
        "improved":   st.Improved,
        "elapsedMs":  st.Elapsed.Milliseconds(),
        "callTimeMs": st.CallTime.Milliseconds(),
    }
}

func statusData(w model.Wave) map[string]any {
    d := map[string]any{"waveId": w.ID, "status": w.Status}
    if w.Done() {
        d["orders"] = w.Orders
        d["aisles"] = w.Aisles
        d["units"] = w.Units
        d["ratio"] = w.Ratio
    }
    if w.Error != "" {
        d["error"] = w.Error
    }
    return d
}
