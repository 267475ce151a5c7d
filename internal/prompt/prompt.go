// Package prompt assembles the system prompts sent with every conversion.
//
// The conversion prompt is a base template with few-shot examples spliced into
// its <prompt_examples> region. Examples are JSON documents read from disk;
// files that are empty or not valid JSON are skipped.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	OpenTag  = "<prompt_examples>"
	CloseTag = "</prompt_examples>"
)

// ErrTemplateNotFound is returned when a required prompt file does not exist.
// It matches fs.ErrNotExist under errors.Is.
var ErrTemplateNotFound = fmt.Errorf("prompt file not found: %w", fs.ErrNotExist)

// ExampleStatus describes what happened to a candidate example file.
type ExampleStatus string

const (
	StatusLoaded  ExampleStatus = "loaded"
	StatusEmpty   ExampleStatus = "empty"
	StatusInvalid ExampleStatus = "invalid"
)

// ExampleFile is one candidate found under the examples directory.
type ExampleFile struct {
	Path   string
	Status ExampleStatus
	Block  string
}

// BuildSystemPrompt reads the base template and injects every valid example
// found under examplesDir. With no valid examples the template is returned
// unchanged.
func BuildSystemPrompt(templatePath, examplesDir string) (string, error) {
	base, err := readRequired(templatePath)
	if err != nil {
		return "", err
	}

	blocks, err := LoadExamples(examplesDir)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return base, nil
	}

	return InjectExamples(base, blocks), nil
}

// LoadValidatorPrompt reads the prompt used by the review pass.
func LoadValidatorPrompt(path string) (string, error) {
	return readRequired(path)
}

func readRequired(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return "", fmt.Errorf("failed to read prompt %s: %w", path, err)
	}
	return string(data), nil
}

// LoadExamples returns the trimmed text of every valid example under dir,
// ordered by path. A missing dir yields no examples.
func LoadExamples(dir string) ([]string, error) {
	files, err := ScanExamples(dir)
	if err != nil {
		return nil, err
	}

	var blocks []string
	for _, f := range files {
		if f.Status == StatusLoaded {
			blocks = append(blocks, f.Block)
		}
	}
	return blocks, nil
}

// ScanExamples classifies every .json file under dir. Files are ordered by
// path, compared case-insensitively.
func ScanExamples(dir string) ([]ExampleFile, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat examples dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped like unreadable files.
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan examples dir: %w", err)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		a, b := strings.ToUpper(paths[i]), strings.ToUpper(paths[j])
		if a != b {
			return a < b
		}
		return paths[i] < paths[j]
	})

	files := make([]ExampleFile, 0, len(paths))
	for _, path := range paths {
		files = append(files, classify(path))
	}
	return files, nil
}

func classify(path string) ExampleFile {
	f := ExampleFile{Path: path, Status: StatusInvalid}

	data, err := os.ReadFile(path)
	if err != nil {
		return f
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		f.Status = StatusEmpty
		return f
	}
	if !json.Valid(data) {
		return f
	}

	f.Status = StatusLoaded
	f.Block = strings.TrimSpace(text)
	return f
}

// InjectExamples places blocks inside the template's <prompt_examples> region,
// right before the closing tag. When the region is missing or malformed a new
// one is appended at the end of the template.
func InjectExamples(template string, blocks []string) string {
	insertion := strings.Join(blocks, "\n\n") + "\n"

	openIdx := indexFold(template, OpenTag)
	closeIdx := indexFold(template, CloseTag)

	var sb strings.Builder
	if openIdx >= 0 && closeIdx > openIdx {
		sb.Grow(len(template) + len(insertion) + 1)
		sb.WriteString(template[:closeIdx])
		if closeIdx > 0 && template[closeIdx-1] != '\n' {
			sb.WriteByte('\n')
		}
		sb.WriteString(insertion)
		sb.WriteString(template[closeIdx:])
		return sb.String()
	}

	sb.Grow(len(template) + len(insertion) + len(OpenTag) + len(CloseTag) + 3)
	sb.WriteString(template)
	if !strings.HasSuffix(template, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString(OpenTag)
	sb.WriteByte('\n')
	sb.WriteString(insertion)
	sb.WriteString(CloseTag)
	sb.WriteByte('\n')
	return sb.String()
}

// indexFold is a case-insensitive strings.Index that reports byte offsets
// into s itself.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
