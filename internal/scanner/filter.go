package scanner

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

type globRule struct {
	re       *regexp.Regexp
	raw      string
	dirOnly  bool
	anchored bool
	hasSlash bool
}

// Matcher applies gitignore-style include and exclude globs to paths
// relative to a scan root. "*" stays within a segment, "**" crosses them,
// a trailing "/" restricts a rule to directories and a leading "/" anchors
// it to the root.
type Matcher struct {
	include []globRule
	exclude []globRule
}

// NewMatcher compiles include and exclude globs. Blank lines and "#"
// comments are ignored.
func NewMatcher(include, exclude []string) *Matcher {
	return &Matcher{
		include: parseRules(include),
		exclude: parseRules(exclude),
	}
}

func parseRules(lines []string) []globRule {
	var rules []globRule
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r := globRule{raw: line}
		if strings.HasPrefix(line, "/") {
			r.anchored = true
			line = strings.TrimPrefix(line, "/")
		}
		if strings.HasSuffix(line, "/") {
			r.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		line = normalizeRel(line)
		if line == "" {
			continue
		}
		r.hasSlash = strings.Contains(line, "/")
		r.re = regexp.MustCompile("^" + globToRegex(line) + "$")
		rules = append(rules, r)
	}
	return rules
}

// ExcludeDir reports whether the directory at rel should not be entered.
func (m *Matcher) ExcludeDir(rel string) bool {
	return matchAny(m.exclude, normalizeRel(rel), true)
}

// IncludeFile reports whether the file at rel should become a record.
func (m *Matcher) IncludeFile(rel string) bool {
	rel = normalizeRel(rel)
	if matchAny(m.exclude, rel, false) {
		return false
	}
	if len(m.include) == 0 {
		return true
	}
	return matchAny(m.include, rel, false)
}

func matchAny(rules []globRule, rel string, isDir bool) bool {
	for _, r := range rules {
		if r.matches(rel, isDir) {
			return true
		}
	}
	return false
}

func (r globRule) matches(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.anchored || r.hasSlash {
		if r.re.MatchString(rel) {
			return true
		}
		if r.anchored {
			return false
		}
		// unanchored path patterns may match at any depth
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			if r.re.MatchString(strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}
	return r.re.MatchString(path.Base(rel))
}

func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			i++
			// "**/" also matches zero directories
			if i+1 < len(pattern) && pattern[i+1] == '/' {
				i++
				b.WriteString("(?:.*/)?")
			} else {
				b.WriteString(".*")
			}
		case ch == '*':
			b.WriteString("[^/]*")
		case ch == '?':
			b.WriteString("[^/]")
		case strings.ContainsRune(`.+()|[]{}^$\`, rune(ch)):
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func normalizeRel(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
