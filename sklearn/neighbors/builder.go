package neighbors

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/celltypist/core/parallel"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/preprocessing"
)

// GraphBuilder computes a fuzzy kNN connectivity graph from a log1p
// expression matrix.
type GraphBuilder struct {
	nNeighbors int
	nPCs       int
	minCells   int
	maxValue   float64
	hvg        preprocessing.HVGOptions
	nJobs      int
	logger     log.Logger
}

// GraphOption configures a GraphBuilder.
type GraphOption func(*GraphBuilder)

// NewGraphBuilder returns a builder with the over-clustering defaults:
// 10 neighbours, 50 principal components, genes expressed in at least 5 cells.
func NewGraphBuilder(options ...GraphOption) *GraphBuilder {
	b := &GraphBuilder{
		nNeighbors: 10,
		nPCs:       50,
		minCells:   5,
		maxValue:   preprocessing.DefaultMaxValue,
		hvg:        preprocessing.DefaultHVGOptions(),
		nJobs:      -1,
		logger:     log.GetLoggerWithName("neighbors"),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// WithNeighbors sets k.
func WithNeighbors(k int) GraphOption {
	return func(b *GraphBuilder) { b.nNeighbors = k }
}

// WithPCs sets the maximum number of principal components.
func WithPCs(n int) GraphOption {
	return func(b *GraphBuilder) { b.nPCs = n }
}

// WithMinCells sets the minimum number of expressing cells for a gene to be kept.
func WithMinCells(n int) GraphOption {
	return func(b *GraphBuilder) { b.minCells = n }
}

// WithHVGOptions overrides the highly variable gene thresholds.
func WithHVGOptions(opts preprocessing.HVGOptions) GraphOption {
	return func(b *GraphBuilder) { b.hvg = opts }
}

// WithGraphJobs sets the number of goroutines used for the neighbour search.
func WithGraphJobs(n int) GraphOption {
	return func(b *GraphBuilder) { b.nJobs = n }
}

// WithGraphLogger sets the logger.
func WithGraphLogger(l log.Logger) GraphOption {
	return func(b *GraphBuilder) { b.logger = l }
}

// Neighborhood is the result of Build.
type Neighborhood struct {
	Graph *Graph
	// Embedding holds the cells in principal component space (cells × PCs).
	Embedding *mat.Dense
	// Genes are the input columns that went into the PCA.
	Genes []int
}

// Build runs gene filtering, HVG selection, scaling, PCA, kNN and fuzzy
// weighting on X (cells × genes, log1p normalised).
func (b *GraphBuilder) Build(X mat.Matrix) (*Neighborhood, error) {
	if b.nNeighbors < 1 {
		return nil, errors.NewValidationError("n_neighbors", "must be positive", b.nNeighbors)
	}
	n, _ := X.Dims()
	if n < 2 {
		return nil, errors.NewInsufficientDataError("GraphBuilder.Build", 2, n, "a neighbour graph needs at least two cells")
	}

	genes := preprocessing.ColumnsExpressedIn(X, b.minCells)
	if len(genes) == 0 {
		return nil, errors.NewInputFormatErrorf("expression matrix", "no gene is expressed in at least %d cells", b.minCells)
	}
	filtered := preprocessing.SelectColumns(X, genes)

	if hvg := preprocessing.HighlyVariableGenes(filtered, b.hvg); len(hvg) >= 2 {
		filtered = preprocessing.SelectColumns(filtered, hvg)
		kept := make([]int, len(hvg))
		for m, j := range hvg {
			kept[m] = genes[j]
		}
		genes = kept
	} else {
		b.logger.Debug("Too few highly variable genes, using all filtered genes", log.GenesKey, len(genes))
	}

	scaled, err := preprocessing.NewStandardScalerDefault().WithMaxValue(b.maxValue).FitTransform(filtered)
	if err != nil {
		return nil, errors.Wrap(err, "scale for PCA")
	}

	embedding, err := b.pca(scaled)
	if err != nil {
		return nil, err
	}

	k := b.nNeighbors
	if k > n-1 {
		k = n - 1
	}
	indices, distances := knn(embedding, k, b.nJobs)
	graph, err := fuzzyGraph(indices, distances, k)
	if err != nil {
		return nil, err
	}

	isolated := 0
	for _, d := range graph.Degrees() {
		if d == 0 {
			isolated++
		}
	}
	if isolated > 0 {
		b.logger.Warn("Some cells have no neighbour with positive weight", "isolated", isolated, log.CellsKey, n)
	}

	_, nPCs := embedding.Dims()
	b.logger.Debug("Neighbour graph built",
		log.CellsKey, n,
		log.GenesKey, len(genes),
		"pcs", nPCs,
		log.NeighborsKey, k,
		"edges", len(graph.Edges),
	)
	return &Neighborhood{Graph: graph, Embedding: embedding, Genes: genes}, nil
}

// pca projects the centred data onto the leading principal components.
func (b *GraphBuilder) pca(X mat.Matrix) (*mat.Dense, error) {
	n, d := X.Dims()
	nComp := b.nPCs
	if nComp > n-1 {
		nComp = n - 1
	}
	if nComp > d {
		nComp = d
	}
	if nComp < 1 {
		return nil, errors.NewInsufficientFeaturesError("GraphBuilder.pca", 1, nComp)
	}

	var pc stat.PC
	var vecs mat.Dense
	err := errors.SafeExecute("principal components", func() error {
		if !pc.PrincipalComponents(X, nil) {
			return errors.New("SVD of the scaled expression matrix did not converge")
		}
		pc.VectorsTo(&vecs)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "PCA")
	}

	centred := mat.DenseCopyOf(X)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, centred)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			centred.Set(i, j, col[i]-mean)
		}
	}

	var embedding mat.Dense
	embedding.Mul(centred, vecs.Slice(0, d, 0, nComp))
	return &embedding, nil
}

// knn finds the k nearest neighbours (Euclidean, excluding self) of every row.
// Neighbours of a row are sorted by increasing distance; ties keep the lower index.
func knn(X *mat.Dense, k, jobs int) ([][]int, [][]float64) {
	n, _ := X.Dims()
	indices := make([][]int, n)
	distances := make([][]float64, n)

	parallel.ParallelizeN(n, jobs, func(start, end int) {
		for i := start; i < end; i++ {
			xi := X.RawRowView(i)
			idx := make([]int, 0, k)
			dist := make([]float64, 0, k)
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				dj := floats.Distance(xi, X.RawRowView(j), 2)
				if len(idx) == k && dj >= dist[k-1] {
					continue
				}
				// 挿入位置（同距離は先に見た方が前）
				pos := len(dist)
				for pos > 0 && dist[pos-1] > dj {
					pos--
				}
				if len(idx) < k {
					idx = append(idx, 0)
					dist = append(dist, 0)
				}
				copy(idx[pos+1:], idx[pos:len(idx)-1])
				copy(dist[pos+1:], dist[pos:len(dist)-1])
				idx[pos] = j
				dist[pos] = dj
			}
			indices[i] = idx
			distances[i] = dist
		}
	})
	return indices, distances
}

const (
	smoothKIterations = 64
	smoothKTolerance  = 1e-5
	minKDistScale     = 1e-3
)

// smoothKNNDist finds rho and sigma for one cell so that
// sum_j exp(-(d_j - rho)/sigma) = log2(k).
func smoothKNNDist(dist []float64, k int, meanAll float64) (rho, sigma float64) {
	target := math.Log2(float64(k))
	for _, d := range dist {
		if d > 0 {
			rho = d
			break
		}
	}

	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for it := 0; it < smoothKIterations; it++ {
		psum := 0.0
		for _, d := range dist {
			psum += math.Exp(-math.Max(0, d-rho) / mid)
		}
		if math.Abs(psum-target) < smoothKTolerance {
			break
		}
		if psum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}

	sigma = mid
	if rho > 0 {
		sigma = math.Max(sigma, minKDistScale*stat.Mean(dist, nil))
	} else {
		sigma = math.Max(sigma, minKDistScale*meanAll)
	}
	return rho, sigma
}

// fuzzyGraph turns kNN distances into UMAP membership strengths and
// symmetrises them with the fuzzy union a + b - a*b.
func fuzzyGraph(indices [][]int, distances [][]float64, k int) (*Graph, error) {
	n := len(indices)
	meanAll := 0.0
	count := 0
	for _, ds := range distances {
		for _, d := range ds {
			meanAll += d
			count++
		}
	}
	if count > 0 {
		meanAll /= float64(count)
	}

	directed := make(map[[2]int]float64, n*k)
	for i := 0; i < n; i++ {
		rho, sigma := smoothKNNDist(distances[i], k, meanAll)
		for m, j := range indices[i] {
			w := 1.0
			if d := distances[i][m] - rho; d > 0 {
				w = math.Exp(-d / sigma)
			}
			directed[[2]int{i, j}] = w
		}
	}

	edges := make([]Edge, 0, len(directed))
	for key, a := range directed {
		i, j := key[0], key[1]
		b, ok := directed[[2]int{j, i}]
		if ok && j < i {
			// 対になる辺は i < j 側で処理済み
			continue
		}
		w := a
		if ok {
			w = a + b - a*b
		}
		edges = append(edges, Edge{From: i, To: j, Weight: w})
	}
	return NewGraph(n, edges)
}
