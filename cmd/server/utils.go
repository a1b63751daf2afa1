package main

import (
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var sizeSuffixes = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

const sizeUnit = 1000.0

// humanBytes formats a byte count with base-1000 SI units, trimming a
// trailing ".0".
func humanBytes(size float64) string {
	if size <= 0 {
		return "0 B"
	}
	base := math.Log10(size) / math.Log10(sizeUnit)
	value := fmt.Sprintf("%.1f", math.Pow(sizeUnit, base-math.Floor(base)))
	value = strings.TrimSuffix(value, ".0")
	return value + " " + sizeSuffixes[int(base)]
}

var contentTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
}

// contentTypeFor guesses a content type from the file extension.
func contentTypeFor(name, fallback string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		return guessed
	}
	return fallback
}

type pathPart struct {
	PartName string `json:"part_name"`
	FullPath string `json:"full_path"`
}

type fileEntry struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	FileType     string `json:"file_type"`
	LastModified string `json:"last_modified"`
	Size         string `json:"size"`
}

type directoryListing struct {
	Paths []pathPart  `json:"paths"`
	Files []fileEntry `json:"files"`
}

// splitPathParts breaks ./<path> into breadcrumb components with accumulated
// full paths.
func splitPathParts(path string) []pathPart {
	var parts []pathPart
	full := ""
	for _, component := range strings.Split("./"+filepath.ToSlash(path), "/") {
		if component == "" {
			continue
		}
		full += component + "/"
		parts = append(parts, pathPart{PartName: component, FullPath: full})
	}
	return parts
}

// listDirectory builds the listing for ./<path>. Entry paths are relative to
// the canonical working directory, timestamps are dd/mm/YYYY HH:MM:SS in UTC,
// sizes human-formatted.
func listDirectory(path string) (*directoryListing, error) {
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	canonicalRoot, err := filepath.EvalSymlinks(workingDir)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(".", path)
	canonicalTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return nil, err
	}

	listing := &directoryListing{
		Paths: splitPathParts(path),
		Files: []fileEntry{},
	}

	entries, err := os.ReadDir(canonicalTarget)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}

		entryPath := filepath.Join(canonicalTarget, entry.Name())
		if !filepath.IsAbs(entryPath) {
			entryPath = filepath.Join(canonicalRoot, entryPath)
		}
		relPath, err := filepath.Rel(canonicalRoot, entryPath)
		if err != nil {
			relPath = entry.Name()
		}

		fileType := "File"
		if entry.IsDir() {
			fileType = "Directory"
		}

		listing.Files = append(listing.Files, fileEntry{
			Path:         filepath.ToSlash(relPath),
			Name:         entry.Name(),
			FileType:     fileType,
			LastModified: info.ModTime().UTC().Format("02/01/2006 15:04:05"),
			Size:         humanBytes(float64(info.Size())),
		})
	}

	return listing, nil
}
