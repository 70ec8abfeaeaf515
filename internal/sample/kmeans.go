package sample

import (
	"math"
	"math/rand"
)

const (
	kmeansSeed    = 42
	kmeansMaxIter = 100
)

// kmeans partitions unit vectors into k clusters with Lloyd's algorithm.
// Initialization is kmeans++-style, driven entirely by a seeded source so
// the partition is reproducible for identical input. Returns per-vector
// cluster labels and the (un-normalized) centroid of each cluster.
func kmeans(vecs [][]float32, k int) ([]int, [][]float32) {
	n := len(vecs)
	dim := len(vecs[0])
	rng := rand.New(rand.NewSource(kmeansSeed))

	centroids := initCentroids(vecs, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, v := range vecs {
			best, bestDist := 0, math.MaxFloat64
			for c, cent := range centroids {
				d := sqDist(v, cent)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := labels[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Re-seed an empty cluster with the point farthest from its
				// current centroid assignment.
				centroids[c] = vecs[farthestPoint(vecs, centroids, labels)]
				continue
			}
			cent := make([]float32, dim)
			for d := range cent {
				cent[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = cent
		}
	}

	return labels, centroids
}

// initCentroids picks k starting centroids, preferring points far from the
// ones already chosen (kmeans++ weighting).
func initCentroids(vecs [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vecs)
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, vecs[rng.Intn(n)])

	dists := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i, v := range vecs {
			best := math.MaxFloat64
			for _, c := range centroids {
				if d := sqDist(v, c); d < best {
					best = d
				}
			}
			dists[i] = best
			total += best
		}

		if total == 0 {
			// All remaining points coincide with a centroid; pick uniformly.
			centroids = append(centroids, vecs[rng.Intn(n)])
			continue
		}

		target := rng.Float64() * total
		var acc float64
		picked := n - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				picked = i
				break
			}
		}
		centroids = append(centroids, vecs[picked])
	}

	return centroids
}

func farthestPoint(vecs [][]float32, centroids [][]float32, labels []int) int {
	best, bestDist := 0, -1.0
	for i, v := range vecs {
		d := sqDist(v, centroids[labels[i]])
		if d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
