package info

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

var (
	name    = "scanguard"
	license = "GPLv3"

	// Set via -ldflags "-X github.com/safing/scanguard/base/info.version=...".
	version   = "dev build"
	buildTime = "unknown"

	info     *Info
	loadInfo sync.Once
)

// Info holds the programs meta information.
type Info struct {
	Name      string
	Version   string
	License   string
	BuildTime string
	CGO       bool

	Commit     string
	CommitTime string
	Dirty      bool

	GoVersion string
}

// Set sets meta information via the main routine. This should be the first thing your program calls.
func Set(setName string, setVersion string, setLicenseName string) {
	name = setName
	license = setLicenseName

	if setVersion != "" {
		version = setVersion
	}
}

// GetInfo returns all the meta information about the program.
func GetInfo() *Info {
	loadInfo.Do(func() {
		buildSettings := make(map[string]string)
		goVersion := runtime.Version()
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range buildInfo.Settings {
				buildSettings[setting.Key] = setting.Value
			}
			goVersion = buildInfo.GoVersion
		}

		info = &Info{
			Name:       name,
			Version:    strings.TrimPrefix(version, "v"),
			License:    license,
			BuildTime:  strings.ReplaceAll(buildTime, "_", " "),
			CGO:        buildSettings["CGO_ENABLED"] == "1",
			Commit:     buildSettings["vcs.revision"],
			CommitTime: buildSettings["vcs.time"],
			Dirty:      buildSettings["vcs.modified"] == "true",
			GoVersion:  goVersion,
		}

		if info.Commit == "" {
			info.Commit = "unknown"
		}
		if info.CommitTime == "" {
			info.CommitTime = "unknown"
		}
	})

	return info
}

// Version returns the annotated version.
func Version() string {
	return GetInfo().Version
}

// FullVersion returns the full and detailed version string.
func FullVersion() string {
	info := GetInfo()
	builder := new(strings.Builder)

	// Name and version.
	fmt.Fprintf(builder, "%s %s\n", info.Name, info.Version)

	// Build info.
	cgoInfo := "-cgo"
	if info.CGO {
		cgoInfo = "+cgo"
	}
	fmt.Fprintf(builder, "\nbuilt with %s (%s %s) for %s/%s\n", info.GoVersion, runtime.Compiler, cgoInfo, runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(builder, "  at %s\n", info.BuildTime)

	// Commit info.
	dirtyInfo := "clean"
	if info.Dirty {
		dirtyInfo = "dirty"
	}
	fmt.Fprintf(builder, "\ncommit %s (%s)\n", info.Commit, dirtyInfo)
	fmt.Fprintf(builder, "  at %s\n", info.CommitTime)

	fmt.Fprintf(builder, "\nLicensed under the %s license.", info.License)

	return builder.String()
}
