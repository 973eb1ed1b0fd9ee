package api

import (
    "bytes"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "wavepick/internal/model"
    "wavepick/internal/opt"
    "wavepick/internal/wave"
)

// maxTimeLimitSec caps per-request solve budgets.
const maxTimeLimitSec = 3600

func validateWaveOptions(o model.WaveOptions) error {
    switch o.Strategy {
    case "", opt.StrategyBinary, opt.StrategyPartition, opt.StrategyScan, opt.StrategyDinkelbach:
    default:
        return fmt.Errorf("invalid strategy: %s", o.Strategy)
    }
    switch opt.Variant(o.Variant) {
    case "", opt.VariantPooled, opt.VariantCapacity:
    default:
        return fmt.Errorf("invalid variant: %s", o.Variant)
    }
    switch o.Oracle {
    case "", "bnb", "cbc":
    default:
        return fmt.Errorf("invalid oracle: %s", o.Oracle)
    }
    if o.TimeLimitSec < 0 || o.TimeLimitSec > maxTimeLimitSec {
        return fmt.Errorf("timeLimitSec must be in [0,%d]", maxTimeLimitSec)
    }
    if o.Gap != nil && (*o.Gap < 0 || *o.Gap >= 1) {
        return fmt.Errorf("gap must be in [0,1)")
    }
    if o.Threads < 0 {
        return fmt.Errorf("threads must be >= 0")
    }
    return nil
}

func validateWaveRequest(req *model.WaveRequest) error {
    hasJSON, hasText := req.Instance != nil, strings.TrimSpace(req.InstanceText) != ""
    if hasJSON == hasText {
        return fmt.Errorf("exactly one of instance or instanceText is required")
    }
    if len(req.Name) > 200 {
        return fmt.Errorf("name must be at most 200 characters")
    }
    return validateWaveOptions(req.Options)
}

// instanceLimits returns the configured instance limits, or the defaults
// when none are set.
func (s *Server) instanceLimits() wave.Limits {
    if s.Cfg.Server.InstanceLimits == (wave.Limits{}) {
        return wave.DefaultLimits
    }
    return s.Cfg.Server.InstanceLimits
}

// requestInstance converts the request payload into a validated instance
// whose dimensions are within lim.
func requestInstance(req *model.WaveRequest, lim wave.Limits) (*wave.Instance, error) {
    if req.Instance == nil {
        return wave.ParseLimited(strings.NewReader(req.InstanceText), lim)
    }
    in := req.Instance
    if err := lim.Check(len(in.Orders), in.NItems, len(in.Aisles)); err != nil {
        return nil, err
    }
    orders := make([]wave.Order, len(in.Orders))
    for i, o := range in.Orders {
        orders[i] = wave.Order(o)
    }
    aisles := make([]wave.Aisle, len(in.Aisles))
    for k, a := range in.Aisles {
        aisles[k] = wave.Aisle(a)
    }
    return wave.NewInstance(orders, aisles, in.NItems, in.WaveSizeLB, in.WaveSizeUB)
}

// decodeOptions reads stored tenant overrides, rejecting unknown keys.
func decodeOptions(m map[string]any) (model.WaveOptions, error) {
    var o model.WaveOptions
    if len(m) == 0 {
        return o, nil
    }
    b, err := json.Marshal(m)
    if err != nil {
        return o, err
    }
    dec := json.NewDecoder(bytes.NewReader(b))
    dec.DisallowUnknownFields()
    if err := dec.Decode(&o); err != nil {
        return o, err
    }
    return o, validateWaveOptions(o)
}

// applyOptions overlays o on cfg and the oracle name.
func applyOptions(cfg opt.Config, oracle string, o model.WaveOptions) (opt.Config, string) {
    if o.Strategy != "" {
        cfg.Strategy = o.Strategy
    }
    if o.Variant != "" {
        cfg.Variant = opt.Variant(o.Variant)
    }
    if o.Oracle != "" {
        oracle = o.Oracle
    }
    if o.TimeLimitSec > 0 {
        cfg.TimeLimit = time.Duration(o.TimeLimitSec * float64(time.Second))
    }
    if o.Gap != nil {
        cfg.Gap = *o.Gap
    }
    if o.Threads > 0 {
        cfg.Threads = o.Threads
    }
    if o.PruneAisles != nil {
        cfg.PruneAisles = *o.PruneAisles
    }
    return cfg, oracle
}

func configView(cfg opt.Config, oracle string) map[string]any {
    return map[string]any{
        "strategy":        cfg.Strategy,
        "variant":         string(cfg.Variant),
        "oracle":          oracle,
        "timeLimitSec":    cfg.TimeLimit.Seconds(),
        "safetyMarginSec": cfg.SafetyMargin.Seconds(),
        "minCallSec":      cfg.MinCallTime.Seconds(),
        "maxCallSec":      cfg.MaxCallTime.Seconds(),
        "gap":             cfg.Gap,
        "tolerance":       cfg.Tolerance,
        "threads":         cfg.Threads,
        "pruneAisles":     cfg.PruneAisles,
        "skewFirstSplit":  cfg.SkewFirstSplit,
    }
}
