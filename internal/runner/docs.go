package runner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"repocheck/internal/metrics"
)

// readmeNames in probe order; the first hit wins.
var readmeNames = []string{
	"README.md", "README.rst", "README.txt", "README",
	"readme.md", "Readme.md",
}

// apiDocMarkers are directory or file names that indicate generated or
// hand-written API documentation.
var apiDocMarkers = []string{
	"docs", "doc", "apidocs", "api-docs", "API.md", "api.md",
}

var (
	setupHeading = regexp.MustCompile(`(?im)^#{1,4}\s*.*\b(install|installation|setup|getting started|quick ?start|prerequisites)\b`)
	usageHeading = regexp.MustCompile(`(?im)^#{1,4}\s*.*\b(usage|examples?|how to use|tutorial)\b`)
	apiHeading   = regexp.MustCompile(`(?im)^#{1,4}\s*.*\b(api|reference|endpoints?)\b`)
	codeFence    = regexp.MustCompile("(?m)^```")
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	mdLink       = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)
	badgeImage   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*(badge|shields\.io|travis|circleci|codecov)[^)]*\)`)
)

// AnalyzeDocumentation fills the documentation dimension from the repository
// tree alone. It never fails: an unreadable tree yields the zero shape.
func AnalyzeDocumentation(root string) metrics.Documentation {
	doc := metrics.Documentation{}

	var content string
	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		doc.ReadmePresent = true
		content = string(data)
		break
	}

	if doc.ReadmePresent {
		doc.ReadmeQualityScore = scoreReadme(content)
		doc.SetupInstructions = setupHeading.MatchString(content)
		doc.UsageExamples = usageHeading.MatchString(content) ||
			len(codeFence.FindAllString(content, -1)) >= 2
		doc.APIDocumentation = apiHeading.MatchString(content)
	}

	if !doc.APIDocumentation {
		for _, marker := range apiDocMarkers {
			info, err := os.Stat(filepath.Join(root, marker))
			if err != nil {
				continue
			}
			if info.IsDir() {
				if dirHasDocFiles(filepath.Join(root, marker)) {
					doc.APIDocumentation = true
					break
				}
				continue
			}
			doc.APIDocumentation = true
			break
		}
	}

	return doc
}

// scoreReadme grades README substance on a 0..1 scale: length, headings,
// code blocks, links, and badges each contribute a fixed share.
func scoreReadme(content string) float64 {
	score := 0.0

	words := len(strings.Fields(content))
	switch {
	case words >= 300:
		score += 0.3
	case words >= 100:
		score += 0.2
	case words >= 30:
		score += 0.1
	}

	headings := len(mdHeading.FindAllString(content, -1))
	switch {
	case headings >= 4:
		score += 0.25
	case headings >= 2:
		score += 0.15
	case headings >= 1:
		score += 0.05
	}

	if len(codeFence.FindAllString(content, -1)) >= 2 {
		score += 0.25
	}
	if mdLink.MatchString(content) {
		score += 0.1
	}
	if badgeImage.MatchString(content) {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}

// dirHasDocFiles reports whether the directory holds at least one markdown,
// rst or html file at its top level.
func dirHasDocFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".rst", ".html":
			return true
		}
	}
	return false
}
