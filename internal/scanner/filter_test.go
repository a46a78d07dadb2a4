package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherExcludeDir(t *testing.T) {
	m := NewMatcher(nil, []string{".git/", "/build/", "docs/tmp", "**/cache/", "# comment", ""})

	tests := []struct {
		rel  string
		want bool
	}{
		{".git", true},
		{"a/b/.git", true},
		{"build", true},
		{"src/build", false},
		{"docs/tmp", true},
		{"proj/docs/tmp", true},
		{"x/y/cache", true},
		{"cache", true},
		{"src", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.ExcludeDir(tt.rel), tt.rel)
	}
}

func TestMatcherIncludeFile(t *testing.T) {
	m := NewMatcher([]string{"*.py", "docs/**/*.md"}, []string{"*_test.py", "secret.*"})

	tests := []struct {
		rel  string
		want bool
	}{
		{"a.py", true},
		{"src/deep/a.py", true},
		{"src/a_test.py", false},
		{"docs/guide.md", true},
		{"docs/a/b/guide.md", true},
		{"other/guide.md", false},
		{"secret.py", false},
		{"notes.txt", false},
		{".git/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.IncludeFile(tt.rel), tt.rel)
	}
}

func TestMatcherDirOnlyRuleDoesNotMatchFiles(t *testing.T) {
	m := NewMatcher(nil, []string{"logs/"})
	assert.True(t, m.IncludeFile("logs"))
	assert.True(t, m.ExcludeDir("logs"))
}

func TestGlobToRegexEscapes(t *testing.T) {
	assert.Equal(t, `a\.b[^/]*`, globToRegex("a.b*"))
	assert.Equal(t, `(?:.*/)?x`, globToRegex("**/x"))
	assert.Equal(t, `a/.*`, globToRegex("a/**"))
	assert.Equal(t, `f[^/]\(1\)`, globToRegex("f?(1)"))
}
