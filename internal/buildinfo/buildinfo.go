package buildinfo

import (
    "runtime"
    "runtime/debug"
)

// Set at link time: -ldflags "-X wavepick/internal/buildinfo.Version=..."
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info reports the link-time values, filling commit and build time from the
// embedded VCS stamp when they were not set.
func Info() map[string]string {
    commit, builtAt := Commit, BuiltAt
    if bi, ok := debug.ReadBuildInfo(); ok {
        for _, s := range bi.Settings {
            switch s.Key {
            case "vcs.revision":
                if commit == "" { commit = s.Value }
            case "vcs.time":
                if builtAt == "" { builtAt = s.Value }
            }
        }
    }
    return map[string]string{
        "version":   Version,
        "commit":    commit,
        "builtAt":   builtAt,
        "goVersion": runtime.Version(),
    }
}
