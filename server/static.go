package server

import (
	"embed"
	"path"
)

//go:embed dist
var distFS embed.FS

// StaticFiles is the embedded asset bundle, a read-only name -> bytes map
// produced at build time.
var StaticFiles = loadStaticFiles()

func loadStaticFiles() map[string][]byte {
	entries, err := distFS.ReadDir("dist")
	if err != nil {
		panic(err)
	}
	files := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		data, err := distFS.ReadFile(path.Join("dist", entry.Name()))
		if err != nil {
			panic(err)
		}
		files[entry.Name()] = data
	}
	return files
}
