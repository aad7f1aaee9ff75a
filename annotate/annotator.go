// Package annotate runs the prediction pipeline: align the model to the
// input genes, standardize, classify and optionally refine the labels by
// over-clustering and majority voting.
package annotate

import (
	"time"

	"github.com/YuminosukeSato/celltypist/celltype"
	"github.com/YuminosukeSato/celltypist/dataio"
	"github.com/YuminosukeSato/celltypist/metrics"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/sklearn/cluster"
	"github.com/YuminosukeSato/celltypist/sklearn/neighbors"
)

// Annotator predicts cell types with a trained model.
type Annotator struct {
	model *celltype.Model

	majorityVoting bool
	clusters       []string
	resolution     float64
	rule           cluster.ResolutionRule
	graphOptions   []neighbors.GraphOption
	randomState    uint64
	logger         log.Logger
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithMajorityVoting enables over-clustering and majority voting.
func WithMajorityVoting(enabled bool) Option {
	return func(a *Annotator) { a.majorityVoting = enabled }
}

// WithOverClustering supplies a precomputed partition (one id per cell)
// used for majority voting instead of running Louvain.
func WithOverClustering(clusters []string) Option {
	return func(a *Annotator) { a.clusters = clusters }
}

// WithResolution fixes the over-clustering resolution. Zero or less selects
// it from the number of cells.
func WithResolution(r float64) Option {
	return func(a *Annotator) { a.resolution = r }
}

// WithResolutionRule replaces the cell-count based resolution defaults.
func WithResolutionRule(rule cluster.ResolutionRule) Option {
	return func(a *Annotator) { a.rule = rule }
}

// WithGraphOptions passes options to the neighbour graph builder.
func WithGraphOptions(opts ...neighbors.GraphOption) Option {
	return func(a *Annotator) { a.graphOptions = append(a.graphOptions, opts...) }
}

// WithRandomState seeds the community detection.
func WithRandomState(seed uint64) Option {
	return func(a *Annotator) { a.randomState = seed }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(a *Annotator) { a.logger = l }
}

// New returns an Annotator for m.
func New(m *celltype.Model, options ...Option) (*Annotator, error) {
	if m == nil {
		return nil, errors.NewMissingArgumentError("annotate.New", "model", "a trained model is required")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	a := &Annotator{
		model:  m,
		rule:   cluster.DefaultResolutionRule(),
		logger: log.GetLoggerWithName("annotate"),
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// Annotate predicts a label and class probabilities for every cell of ds.
// With majority voting enabled it also over-clusters ds and smooths the
// labels per cluster.
func (a *Annotator) Annotate(ds *dataio.Dataset) (*AnnotationResult, error) {
	if ds == nil || ds.X == nil {
		return nil, errors.NewMissingArgumentError("Annotate", "dataset", "an expression matrix is required")
	}
	start := time.Now()
	logger := a.logger.With(log.OperationKey, log.OperationAnnotate)
	logger.Info("Annotating cells", log.CellsKey, ds.NCells(), log.GenesKey, ds.NGenes())

	view, err := a.model.Align(ds.Genes, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Features used for prediction", log.OverlapKey, len(view.Genes))

	pred, err := view.Predict(ds.X)
	if err != nil {
		return nil, err
	}

	res := &AnnotationResult{
		Cells:           append([]string(nil), ds.Cells...),
		Classes:         pred.Classes,
		PredictedLabels: pred.Labels,
		Probabilities:   pred.Proba,
		Dataset:         ds,
	}

	if a.majorityVoting {
		clusters := a.clusters
		if clusters == nil {
			if clusters, err = a.OverCluster(ds); err != nil {
				return nil, err
			}
		}
		if res, err = MajorityVote(res, clusters); err != nil {
			return nil, err
		}
	}

	logger.Info("Prediction done",
		log.CellsKey, res.NCells(),
		log.ClassesKey, len(res.Classes),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// OverCluster partitions the cells of ds with Louvain. The neighbour graph
// stored on ds is reused; otherwise one is built and stored on ds together
// with its PCA embedding.
func (a *Annotator) OverCluster(ds *dataio.Dataset) ([]string, error) {
	logger := a.logger.With(log.OperationKey, log.OperationOverCluster)
	if err := EnsureGraph(ds, logger, a.graphOptions...); err != nil {
		return nil, err
	}

	louvain := cluster.NewLouvain(
		cluster.WithResolution(a.resolution),
		cluster.WithResolutionRule(a.rule),
		cluster.WithRandomState(a.randomState),
		cluster.WithLogger(logger),
	)
	logger.Info("Over-clustering input data", log.ResolutionKey, louvain.Resolution(ds.NCells()))
	clusters, err := louvain.FitPredict(ds.Graph)
	if err != nil {
		return nil, err
	}
	logger.Info("Over-clustering done",
		log.ClustersKey, len(metrics.Frequencies(clusters)),
		log.ModularityKey, louvain.Modularity(),
	)
	return clusters, nil
}

// EnsureGraph builds the neighbour graph of ds when it has none. A graph
// already present is kept and reported.
func EnsureGraph(ds *dataio.Dataset, logger log.Logger, opts ...neighbors.GraphOption) error {
	if ds.Graph != nil {
		if ds.Graph.Nodes != ds.NCells() {
			return errors.NewDimensionMismatchError("EnsureGraph", "graph nodes", "", ds.NCells(), ds.Graph.Nodes)
		}
		logger.Info("Detected a neighbourhood graph in the input, over-clustering on the basis of it")
		return nil
	}

	logger.Info("No neighbourhood graph found, constructing one")
	opts = append([]neighbors.GraphOption{neighbors.WithGraphLogger(logger)}, opts...)
	nb, err := neighbors.NewGraphBuilder(opts...).Build(ds.X)
	if err != nil {
		return err
	}
	ds.Graph = nb.Graph
	if ds.Embedding == nil {
		ds.Embedding = nb.Embedding
	}
	return nil
}

// MajorityVote returns a copy of res with the over-clustering and the
// per-cluster consensus labels filled in.
func MajorityVote(res *AnnotationResult, clusters []string) (*AnnotationResult, error) {
	if res == nil {
		return nil, errors.NewMissingArgumentError("MajorityVote", "predictions", "an annotation result is required")
	}
	votes, err := celltype.MajorityVote(res.PredictedLabels, clusters)
	if err != nil {
		return nil, err
	}
	out := *res
	out.OverClustering = append([]string(nil), clusters...)
	out.MajorityVoting = votes
	return &out, nil
}
