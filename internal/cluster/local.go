package cluster

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/harrison/projsort/internal/models"
)

const (
	defaultSeed        = 42
	defaultMaxClusters = 12
	defaultRestarts    = 10
	maxIterations      = 50
)

// Local clusters records with seeded spherical k-means over TF-IDF vectors and
// names each cluster with DeriveLabel. Identical input always yields the
// same labels.
type Local struct {
	seed        int64
	maxClusters int
	restarts    int
}

// NewLocal returns the local strategy. Non-positive arguments select the
// defaults (seed 42, at most 12 clusters).
func NewLocal(seed int64, maxClusters int) *Local {
	if seed == 0 {
		seed = defaultSeed
	}
	if maxClusters <= 0 {
		maxClusters = defaultMaxClusters
	}
	return &Local{seed: seed, maxClusters: maxClusters, restarts: defaultRestarts}
}

func (l *Local) Name() string {
	return models.ClusterModeLocal
}

// Cluster never fails on non-empty input unless ctx is cancelled.
func (l *Local) Cluster(ctx context.Context, records []models.ClassifiedRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	sorted := make([]models.ClassifiedRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Record.SafeID < sorted[j].Record.SafeID })

	vectors, dim := buildVectors(sorted)
	k := l.clusterCount(len(sorted))

	rng := rand.New(rand.NewSource(l.seed))
	var (
		bestAssign    []int
		bestCentroids [][]float64
		bestScore     = math.Inf(-1)
	)
	for r := 0; r < l.restarts; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		assign, centroids := kmeans(vectors, dim, k, rng)
		if score := objective(vectors, assign, len(centroids), dim); score > bestScore+1e-12 {
			bestScore, bestAssign, bestCentroids = score, assign, centroids
		}
	}

	members := make([][]int, len(bestCentroids))
	for i, c := range bestAssign {
		members[c] = append(members[c], i)
	}

	out := make([]models.ClusterAssignment, 0, len(sorted))
	for c, idxs := range members {
		if len(idxs) == 0 {
			continue
		}
		paths := make([]string, len(idxs))
		for j, i := range idxs {
			paths[j] = sorted[i].Record.Path
		}
		label := DeriveLabel(paths)
		for _, i := range idxs {
			out = append(out, models.ClusterAssignment{
				SafeID:       sorted[i].Record.SafeID,
				ProjectLabel: label,
				Confidence:   ClampConfidence(dot(vectors[i], bestCentroids[c])),
			})
		}
	}
	return &Result{Strategy: models.ClusterModeLocal, Assignments: out}, nil
}

// clusterCount is sqrt(n) bounded to [2, maxClusters] and never above n.
func (l *Local) clusterCount(n int) int {
	k := int(math.Sqrt(float64(n)))
	if k < 2 {
		k = 2
	}
	if k > l.maxClusters {
		k = l.maxClusters
	}
	if k > n {
		k = n
	}
	return k
}

// kmeans runs one k-means++ seeded spherical k-means pass. Fewer than k
// centroids are returned when the points do not have k distinct directions.
func kmeans(vectors []vector, dim, k int, rng *rand.Rand) ([]int, [][]float64) {
	n := len(vectors)
	centroids := [][]float64{densify(vectors[rng.Intn(n)], dim)}

	dist := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			d := math.Inf(1)
			for _, c := range centroids {
				if x := 1 - dot(v, c); x < d {
					d = x
				}
			}
			if d < 0 {
				d = 0
			}
			dist[i] = d * d
			total += dist[i]
		}
		if total <= 1e-12 {
			break
		}
		target := rng.Float64() * total
		pick := n - 1
		var acc float64
		for i, d := range dist {
			acc += d
			if acc >= target && d > 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, densify(vectors[pick], dim))
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestSim := 0, math.Inf(-1)
			for c, centroid := range centroids {
				if s := dot(v, centroid); s > bestSim {
					best, bestSim = c, s
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		updateCentroids(vectors, assign, centroids)
	}
	return assign, centroids
}

// updateCentroids replaces each centroid by the normalized sum of its
// members. A centroid that lost all members keeps its previous position.
func updateCentroids(vectors []vector, assign []int, centroids [][]float64) {
	sums := make([][]float64, len(centroids))
	for i, v := range vectors {
		c := assign[i]
		if sums[c] == nil {
			sums[c] = make([]float64, len(centroids[c]))
		}
		for _, f := range v {
			sums[c][f.idx] += f.w
		}
	}
	for c, sum := range sums {
		if sum == nil {
			continue
		}
		var norm float64
		for _, x := range sum {
			norm += x * x
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range sum {
				sum[j] /= norm
			}
		}
		centroids[c] = sum
	}
}

// objective is the spherical k-means quality: the sum over clusters of the
// length of the members' vector sum. Higher is tighter.
func objective(vectors []vector, assign []int, k, dim int) float64 {
	sums := make([][]float64, k)
	for i, v := range vectors {
		c := assign[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for _, f := range v {
			sums[c][f.idx] += f.w
		}
	}
	var total float64
	for _, sum := range sums {
		var norm float64
		for _, x := range sum {
			norm += x * x
		}
		total += math.Sqrt(norm)
	}
	return total
}
