package cluster

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/harrison/projsort/internal/models"
)

// Term weights. Directory segments dominate so that files sharing a project
// folder attract each other more than files sharing a bucket across projects.
const (
	weightDir  = 4.0
	weightTag  = 2.0
	weightName = 1.0
	weightExt  = 1.0
	weightHint = 0.5

	maxHintTerms = 64
)

type feature struct {
	idx int
	w   float64
}

// vector is a sparse unit vector sorted by feature index. The zero-length
// vector stands for a record with no distinguishing terms.
type vector []feature

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func recordTerms(rec models.ClassifiedRecord) map[string]float64 {
	terms := make(map[string]float64)
	add := func(term string, w float64) { terms[term] += w }

	for _, seg := range dirSegments(rec.Record.Path) {
		if isGeneric(seg) {
			continue
		}
		add("d:"+strings.ToLower(seg), weightDir)
	}

	name := rec.Record.Name
	if name == "" {
		name = filepath.Base(rec.Record.Path)
	}
	ext := rec.Record.Extension
	if ext == "" {
		ext = filepath.Ext(name)
	}
	for _, tok := range tokenize(strings.TrimSuffix(name, ext)) {
		add("n:"+tok, weightName)
	}
	if ext != "" {
		add("e:"+strings.ToLower(ext), weightExt)
	}

	for _, tag := range rec.Tags {
		add("t:"+tag, weightTag)
	}

	hinted := 0
	for _, tok := range tokenize(rec.Record.ContentHint) {
		if hinted == maxHintTerms {
			break
		}
		if len(tok) < 3 {
			continue
		}
		add("h:"+tok, weightHint)
		hinted++
	}
	return terms
}

// buildVectors turns records into TF-IDF weighted unit vectors. Terms present
// in every record carry no information and are dropped. It returns the
// vectors and the vocabulary size.
func buildVectors(records []models.ClassifiedRecord) ([]vector, int) {
	n := len(records)
	perRecord := make([]map[string]float64, n)
	df := make(map[string]int)
	for i, rec := range records {
		perRecord[i] = recordTerms(rec)
		for term := range perRecord[i] {
			df[term]++
		}
	}

	// Stable indices regardless of map iteration order.
	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	index := make(map[string]int, len(vocab))
	for i, term := range vocab {
		index[term] = i
	}

	vectors := make([]vector, n)
	for i, terms := range perRecord {
		v := make(vector, 0, len(terms))
		for term, tf := range terms {
			idf := math.Log(float64(n) / float64(df[term]))
			if w := tf * idf; w > 0 {
				v = append(v, feature{idx: index[term], w: w})
			}
		}
		// Sum in vocabulary order so the norm is bit-identical across runs.
		sort.Slice(v, func(a, b int) bool { return v[a].idx < v[b].idx })
		var norm float64
		for _, f := range v {
			norm += f.w * f.w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range v {
				v[j].w /= norm
			}
		}
		vectors[i] = v
	}
	return vectors, len(vocab)
}

// dot is the cosine similarity of a unit vector and a unit dense centroid.
func dot(v vector, centroid []float64) float64 {
	var s float64
	for _, f := range v {
		s += f.w * centroid[f.idx]
	}
	return s
}

func densify(v vector, dim int) []float64 {
	out := make([]float64, dim)
	for _, f := range v {
		out[f.idx] = f.w
	}
	return out
}
