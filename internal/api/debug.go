package api

import (
    "net/http"
    "sort"
    "time"

    "wavepick/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    p, ok := s.principal(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    oracles := make([]string, 0, len(s.Oracles))
    for name := range s.Oracles { oracles = append(oracles, name) }
    sort.Strings(oracles)
    cfg := s.Cfg
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port": cfg.Server.Port,
            "authMode": cfg.Auth.Mode,
            "rateRPS": cfg.Server.RateRPS,
            "rateBurst": cfg.Server.RateBurst,
            "maxConcurrentSolves": cfg.Server.MaxConcurrentSolves,
            "webhookMaxAttempts": cfg.Webhooks.MaxAttempts,
            "hasDatabaseURL": cfg.Server.DatabaseURL != "",
            "hasRedisURL": cfg.Server.RedisURL != "",
            "defaultOracle": cfg.Oracle.Default,
            "solver": configView(cfg.Solver, cfg.Oracle.Default),
        },
        "oracles": oracles,
    }
    writeJSON(w, http.StatusOK, info)
}
