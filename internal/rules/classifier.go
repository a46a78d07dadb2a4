package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/harrison/projsort/internal/models"
)

type compiledRule struct {
	Rule
	index int
	re    *regexp.Regexp
}

// Classifier applies a compiled rule list. It is safe for concurrent use
// and deterministic: the same record always yields the same tags.
type Classifier struct {
	rules    []compiledRule
	mode     string
	warnings []error
}

// NewClassifier compiles rules. A rule with a bad pattern, an empty bucket
// or a negative weight is disabled and reported through Warnings; the rest
// still apply. An unknown mode is an error.
func NewClassifier(rules []Rule, mode string) (*Classifier, error) {
	if mode == "" {
		mode = ModeFirst
	}
	if mode != ModeFirst && mode != ModeWeighted {
		return nil, fmt.Errorf("unknown rules mode %q (want %s or %s)", mode, ModeFirst, ModeWeighted)
	}

	c := &Classifier{mode: mode}
	for i, r := range rules {
		if err := checkRule(r); err != nil {
			c.warnings = append(c.warnings, &RuleError{Index: i, Name: r.Name, Err: err})
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			c.warnings = append(c.warnings, &RuleError{Index: i, Name: r.Name, Err: err})
			continue
		}
		if r.Weight == 0 {
			r.Weight = 1
		}
		r.Bucket = strings.ToLower(strings.TrimSpace(r.Bucket))
		c.rules = append(c.rules, compiledRule{Rule: r, index: i, re: re})
	}
	return c, nil
}

func checkRule(r Rule) error {
	switch {
	case strings.TrimSpace(r.Bucket) == "":
		return errors.New("empty bucket")
	case r.Pattern == "":
		return errors.New("empty pattern")
	case r.Weight < 0:
		return fmt.Errorf("negative weight %v", r.Weight)
	}
	return nil
}

// Warnings returns one *RuleError per disabled rule.
func (c *Classifier) Warnings() []error {
	return c.warnings
}

// Active returns the number of usable rules.
func (c *Classifier) Active() int {
	return len(c.rules)
}

// Mode returns the matching mode.
func (c *Classifier) Mode() string {
	return c.mode
}

// matches tests the rule against the file name, the path and the content
// hint separately so "$" anchors keep their meaning per field.
func (r compiledRule) matches(rec models.ScanRecord) bool {
	return r.re.MatchString(rec.Name) ||
		r.re.MatchString(slashPath(rec.Path)) ||
		(rec.ContentHint != "" && r.re.MatchString(rec.ContentHint))
}

func slashPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Classify returns the ordered tags for rec. In first mode the first
// matching rule decides; in weighted mode every matching bucket is returned
// ordered by weight, ties by rule order. No match yields "unclassified".
func (c *Classifier) Classify(rec models.ScanRecord) models.ClassificationScore {
	score := models.ClassificationScore{SafeID: rec.SafeID}

	if c.mode == ModeFirst {
		for _, r := range c.rules {
			if r.matches(rec) {
				score.Tags = []string{r.Bucket}
				score.Score = r.Weight
				return score
			}
		}
		score.Tags = []string{models.UnclassifiedTag}
		return score
	}

	type hit struct {
		bucket string
		weight float64
		index  int
	}
	best := make(map[string]hit)
	for _, r := range c.rules {
		if !r.matches(rec) {
			continue
		}
		if h, ok := best[r.Bucket]; !ok || r.Weight > h.weight {
			best[r.Bucket] = hit{bucket: r.Bucket, weight: r.Weight, index: r.index}
		}
	}
	if len(best) == 0 {
		score.Tags = []string{models.UnclassifiedTag}
		return score
	}

	hits := make([]hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].weight != hits[j].weight {
			return hits[i].weight > hits[j].weight
		}
		return hits[i].index < hits[j].index
	})
	for _, h := range hits {
		score.Tags = append(score.Tags, h.bucket)
		score.Score += h.weight
	}
	return score
}
