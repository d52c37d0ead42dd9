// Package web holds the page served by the mesh monitor.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DevEnv names the variable that makes the monitor serve the page from the
// source tree, so that edits show up without a rebuild.
const DevEnv = "MESHSIM_MONITOR_DEV"

//go:embed dist
var dist embed.FS

// GetAssets returns the files of the monitor page.
func GetAssets() http.FileSystem {
	if dev, _ := strconv.ParseBool(os.Getenv(DevEnv)); dev {
		_, file, _, _ := runtime.Caller(0)
		return http.Dir(filepath.Join(filepath.Dir(file), "dist"))
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}
