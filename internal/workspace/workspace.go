package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	ManifestName = "index.json"
	ResultsName  = "results.json"
	ReportName   = "report.json"
	ReportCSV    = "report.csv"
	MetricsName  = "metrics.prom"
)

// Layout is the set of directories a run reads from and writes to.
type Layout struct {
	CorpusDir    string
	ReferenceDir string
	ResultsDir   string
}

var documentExt = regexp.MustCompile(`\.(docx|doc)$`)

// CleanEntry ensures a corpus file name is relative and stays inside the corpus.
func CleanEntry(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("file is required")
	}
	if filepath.IsAbs(name) {
		return "", errors.New("file must be relative")
	}
	clean := filepath.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("file cannot point outside the corpus")
	}
	return clean, nil
}

// Stem strips a trailing .docx or .doc extension.
func Stem(file string) string {
	return documentExt.ReplaceAllString(file, "")
}

func (l Layout) ManifestFile() string {
	return filepath.Join(l.CorpusDir, ManifestName)
}

func (l Layout) ResultsFile() string {
	return filepath.Join(l.ResultsDir, ResultsName)
}

func (l Layout) ReportFile() string {
	return filepath.Join(l.ResultsDir, ReportName)
}

func (l Layout) ReportCSVFile() string {
	return filepath.Join(l.ResultsDir, ReportCSV)
}

func (l Layout) MetricsFile() string {
	return filepath.Join(l.ResultsDir, MetricsName)
}

func (l Layout) ActualPath(file string) string {
	return filepath.Join(l.ResultsDir, Stem(file)+"-actual.png")
}

func (l Layout) DiffPath(file string) string {
	return filepath.Join(l.ResultsDir, Stem(file)+"-diff.png")
}

func (l Layout) ReferencePath(file string) string {
	return filepath.Join(l.ReferenceDir, Stem(file)+"-reference.png")
}

// EnsureDir makes sure dir exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
