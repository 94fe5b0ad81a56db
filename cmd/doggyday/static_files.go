//go:build !nostatic

package main

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFiles embed.FS

// getStaticFS returns the bundled UI shell
func getStaticFS() (fs.FS, bool) {
	sub, err := fs.Sub(staticFiles, staticRoot())
	if err != nil {
		return nil, false
	}
	return sub, true
}

// staticRoot returns the embedded directory holding the shell
func staticRoot() string {
	return "static"
}
