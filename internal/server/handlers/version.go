package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

var build = struct {
	sync.RWMutex
	version, commit, date string
	identity              *appidentity.Identity
	startedAt             time.Time
}{version: "dev", commit: "unknown", date: "unknown", startedAt: time.Now()}

// SetVersionInfo records the ldflags build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	build.Lock()
	defer build.Unlock()
	build.version, build.commit, build.date = version, commit, buildDate
}

// SetAppIdentity sets the identity whose name and description /version reports.
func SetAppIdentity(identity *appidentity.Identity) {
	build.Lock()
	defer build.Unlock()
	build.identity = identity
}

type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Commit      string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	build.RLock()
	app := AppInfo{
		Name:      executableName(),
		Version:   build.version,
		Commit:    build.commit,
		BuildDate: build.date,
	}
	if build.identity != nil {
		app.Name = build.identity.BinaryName
		app.Description = build.identity.Description
	}
	uptime := time.Since(build.startedAt)
	build.RUnlock()

	deps := crucible.GetVersion()
	writeJSON(w, http.StatusOK, VersionResponse{
		App:          app,
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			GoVersion:     runtime.Version(),
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
			UptimeSeconds: int64(uptime.Seconds()),
		},
	})
}

func executableName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "unknown"
}
