// Package detect identifies the primary language of a working tree by
// tallying bytes per file extension. Detection never fails; an unrecognized
// tree comes back as "unknown" with zero confidence.
package detect

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Language tags emitted on the repository descriptor.
const (
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangJava       = "java"
	LangGo         = "go"
	LangRust       = "rust"
	LangUnknown    = "unknown"
)

// Detection is the detector output.
type Detection struct {
	// Primary is the byte-majority language.
	Primary string

	// Distribution maps each detected language to its byte share in [0,1].
	Distribution map[string]float64

	// Confidence is the byte share of the winner.
	Confidence float64
}

// extensionLanguages is the fixed extension to language table.
var extensionLanguages = map[string]string{
	".py":   LangPython,
	".pyi":  LangPython,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".mts":  LangTypeScript,
	".java": LangJava,
	".go":   LangGo,
	".rs":   LangRust,
}

// excludedDirs are vendored and build directories that would skew the tally.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"build":        true,
	"dist":         true,
	".git":         true,
}

// tieOrder is the fixed tie-break ordering: the lower rank wins an exact tie.
var tieOrder = map[string]int{
	LangGo:         0,
	LangRust:       1,
	LangJava:       2,
	LangTypeScript: 3,
	LangJavaScript: 4,
	LangPython:     5,
}

// Detect walks root and returns the byte-majority language. Walk errors on
// individual entries are skipped; the detector itself never fails.
func Detect(root string) Detection {
	byteCounts := make(map[string]int64)
	var total int64

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		byteCounts[lang] += info.Size()
		total += info.Size()
		return nil
	})

	det := Detection{Primary: LangUnknown, Distribution: make(map[string]float64)}
	if total == 0 {
		return det
	}

	var best string
	var bestBytes int64 = -1
	for lang, n := range byteCounts {
		det.Distribution[lang] = float64(n) / float64(total)
		if n > bestBytes || (n == bestBytes && tieOrder[lang] < tieOrder[best]) {
			best, bestBytes = lang, n
		}
	}

	det.Primary = best
	det.Confidence = det.Distribution[best]
	return det
}
