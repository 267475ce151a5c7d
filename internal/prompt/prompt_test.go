package prompt

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildSystemPrompt_MissingTemplate(t *testing.T) {
	dir := t.TempDir()

	_, err := BuildSystemPrompt(filepath.Join(dir, "missing.txt"), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestBuildSystemPrompt_NoExamplesReturnsTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "base.txt")
	base := "Convert Pascal.\r\n<prompt_examples>\n</prompt_examples>\n  trailing  "
	writeFile(t, tmpl, base)

	examples := filepath.Join(dir, "Examples")
	require.NoError(t, os.MkdirAll(examples, 0o755))

	got, err := BuildSystemPrompt(tmpl, examples)
	require.NoError(t, err)
	assert.Equal(t, base, got)

	got, err = BuildSystemPrompt(tmpl, filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestBuildSystemPrompt_OnlyInvalidExamples(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "base.txt")
	writeFile(t, tmpl, "base")
	writeFile(t, filepath.Join(dir, "ex", "a.json"), "{not json")
	writeFile(t, filepath.Join(dir, "ex", "b.json"), "   \n")

	got, err := BuildSystemPrompt(tmpl, filepath.Join(dir, "ex"))
	require.NoError(t, err)
	assert.Equal(t, "base", got)
}

func TestBuildSystemPrompt_InjectsSortedValidExamples(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "base.txt")
	writeFile(t, tmpl, "Header\n<prompt_examples>\n</prompt_examples>\nFooter\n")

	ex := filepath.Join(dir, "Examples")
	writeFile(t, filepath.Join(ex, "b.json"), "\n  {\"pascal\":\"b\",\"code\":\"B\"}  \n")
	writeFile(t, filepath.Join(ex, "A.json"), `{"pascal":"a","code":"A"}`)
	writeFile(t, filepath.Join(ex, "nested", "c.JSON"), `{"pascal":"c","code":"C"}`)
	writeFile(t, filepath.Join(ex, "broken.json"), `{"pascal":`)
	writeFile(t, filepath.Join(ex, "empty.json"), "")
	writeFile(t, filepath.Join(ex, "notes.txt"), `{"ignored":true}`)

	got, err := BuildSystemPrompt(tmpl, ex)
	require.NoError(t, err)

	a := `{"pascal":"a","code":"A"}`
	b := `{"pascal":"b","code":"B"}`
	c := `{"pascal":"c","code":"C"}`
	want := "Header\n<prompt_examples>\n" + a + "\n\n" + b + "\n\n" + c + "\n</prompt_examples>\nFooter\n"
	assert.Equal(t, want, got)
	assert.Equal(t, 3, strings.Count(got, `{"pascal":`))
	assert.NotContains(t, got, "ignored")
}

func TestInjectExamples(t *testing.T) {
	blocks := []string{`{"a":1}`, `{"b":2}`}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "region present",
			template: "x\n<prompt_examples>\n</prompt_examples>\ny",
			expected: "x\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>\ny",
		},
		{
			name:     "close tag not on its own line",
			template: "<prompt_examples>existing</prompt_examples>",
			expected: "<prompt_examples>existing\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>",
		},
		{
			name:     "tags in other case",
			template: "<PROMPT_EXAMPLES>\n</Prompt_Examples>",
			expected: "<PROMPT_EXAMPLES>\n{\"a\":1}\n\n{\"b\":2}\n</Prompt_Examples>",
		},
		{
			name:     "no region",
			template: "plain prompt",
			expected: "plain prompt\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>\n",
		},
		{
			name:     "no region with trailing newline",
			template: "plain prompt\n",
			expected: "plain prompt\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>\n",
		},
		{
			name:     "close before open",
			template: "</prompt_examples> <prompt_examples>",
			expected: "</prompt_examples> <prompt_examples>\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>\n",
		},
		{
			name:     "only open tag",
			template: "<prompt_examples>\n",
			expected: "<prompt_examples>\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>\n",
		},
		{
			name:     "multibyte text before region",
			template: "İstanbul ſ\n<prompt_examples>\n</prompt_examples>",
			expected: "İstanbul ſ\n<prompt_examples>\n{\"a\":1}\n\n{\"b\":2}\n</prompt_examples>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InjectExamples(tt.template, blocks))
		})
	}
}

func TestInjectExamples_KeepsTemplateTextAroundRegion(t *testing.T) {
	template := "before <prompt_examples>\n</prompt_examples> after"
	got := InjectExamples(template, []string{"{}"})

	assert.True(t, strings.HasPrefix(got, "before <prompt_examples>\n"))
	assert.True(t, strings.HasSuffix(got, "</prompt_examples> after"))
	assert.Equal(t, 1, strings.Count(got, OpenTag))
	assert.Equal(t, 1, strings.Count(got, CloseTag))
}

func TestScanExamples_Statuses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.json"), `{"ok":true}`)
	writeFile(t, filepath.Join(dir, "2.json"), " ")
	writeFile(t, filepath.Join(dir, "3.json"), "nope")

	files, err := ScanExamples(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, StatusLoaded, files[0].Status)
	assert.Equal(t, StatusEmpty, files[1].Status)
	assert.Equal(t, StatusInvalid, files[2].Status)
	assert.Equal(t, `{"ok":true}`, files[0].Block)
}

func TestLoadValidatorPrompt(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadValidatorPrompt(filepath.Join(dir, "checkRoslyn.txt"))
	assert.True(t, errors.Is(err, ErrTemplateNotFound))

	writeFile(t, filepath.Join(dir, "checkRoslyn.txt"), "review C#")
	got, err := LoadValidatorPrompt(filepath.Join(dir, "checkRoslyn.txt"))
	require.NoError(t, err)
	assert.Equal(t, "review C#", got)
}
