package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    Tenant string
    Role   string // admin, planner, viewer
}

// getPrincipal extracts tenant and role from a bearer token or headers.
// - If Authorization: Bearer is present, uses the configured verifier (dev/hmac).
// - Else falls back to X-Tenant-Id / X-Role headers in dev mode only.
// ok is false when no identity could be established.
func (s *Server) getPrincipal(r *http.Request) (Principal, bool) {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        pr, err := s.Auth.Verify(tok)
        if err != nil { return Principal{}, false }
        return Principal{Tenant: pr.Tenant, Role: pr.Role}, true
    }
    if s.Auth != nil && s.Auth.Mode != "dev" {
        return Principal{}, false
    }
    tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
    role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = "admin"
    }
    return Principal{Tenant: tenant, Role: role}, true
}

// principal writes a 401 problem when the request carries no valid identity.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
    p, ok := s.getPrincipal(r)
    if !ok { writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", r.URL.Path) }
    return p, ok
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanSubmit reports whether the principal may submit waves.
func (p Principal) CanSubmit() bool { return p.Role == "admin" || p.Role == "planner" }
