package index

import (
	"path/filepath"
	"strings"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// languageByExtension maps file extensions (exact filenames live in
// languageByFilename) to the
// Language values the parsing package's symbol patterns key on, plus a
// broader set of languages the line-window fallback still labels correctly
// for search filtering even without a dedicated symbol pattern.
var languageByExtension = map[string]model.Language{
	".go": "go",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	".java": "java",

	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".kt":    "kotlin",
	".kts":   "kotlin",

	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".xml":  "xml",
	".ini":  "ini",
}

var languageByFilename = map[string]model.Language{
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",
	"Dockerfile":  "dockerfile",
}

// configLikeLanguages are formats that carry structured data rather than
// meaningful chunkable symbols; the indexing coordinator applies a separate,
// smaller size threshold to these so a huge generated lockfile-shaped JSON
// blob can't dominate the index the way oversized source would.
var configLikeLanguages = map[model.Language]bool{
	"json": true, "yaml": true, "toml": true, "xml": true, "ini": true,
}

// DetectLanguage classifies relPath by filename first, then extension,
// returning model.LanguageUnknown when nothing matches.
func DetectLanguage(relPath string) model.Language {
	base := filepath.Base(relPath)
	if lang, ok := languageByFilename[base]; ok {
		return lang
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return model.LanguageUnknown
}

// isConfigLike reports whether language is a structured-data format subject
// to IndexingConfig.ConfigFileSizeThresholdKB rather than MaxFileSizeMB.
func isConfigLike(language model.Language) bool {
	return configLikeLanguages[language]
}
