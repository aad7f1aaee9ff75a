// Package cluster provides the over-clustering step used to smooth
// per-cell predictions: Louvain community detection on a neighbour graph.
package cluster

import (
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
	"github.com/YuminosukeSato/celltypist/pkg/log"
	"github.com/YuminosukeSato/celltypist/sklearn/neighbors"
)

// Louvain はモジュラリティ最大化によるグラフクラスタリング
type Louvain struct {
	resolution  float64 // 0 以下なら ResolutionRule から細胞数で決める
	rule        ResolutionRule
	randomState uint64
	logger      log.Logger

	// 学習結果
	labels     []string
	modularity float64
}

// LouvainOption は Louvain の設定オプション
type LouvainOption func(*Louvain)

// NewLouvain は新しい Louvain を作成する。解像度を指定しない場合は
// DefaultResolutionRule に従って細胞数から決める。
func NewLouvain(options ...LouvainOption) *Louvain {
	l := &Louvain{
		rule:   DefaultResolutionRule(),
		logger: log.GetLoggerWithName("cluster"),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// WithResolution は解像度を固定する
func WithResolution(r float64) LouvainOption {
	return func(l *Louvain) { l.resolution = r }
}

// WithResolutionRule は細胞数から解像度を決める規則を設定する
func WithResolutionRule(rule ResolutionRule) LouvainOption {
	return func(l *Louvain) { l.rule = rule }
}

// WithRandomState は乱数シードを設定する
func WithRandomState(seed uint64) LouvainOption {
	return func(l *Louvain) { l.randomState = seed }
}

// WithLogger はロガーを設定する
func WithLogger(logger log.Logger) LouvainOption {
	return func(l *Louvain) { l.logger = logger }
}

// Resolution は nCells 個の細胞に使われる解像度を返す
func (l *Louvain) Resolution(nCells int) float64 {
	if l.resolution > 0 {
		return l.resolution
	}
	return l.rule.Resolve(nCells)
}

// FitPredict は g をクラスタリングし、細胞ごとのクラスタ ID を返す。
// ID は "0" から始まり、大きいクラスタほど小さい番号になる。
func (l *Louvain) FitPredict(g *neighbors.Graph) ([]string, error) {
	if g == nil {
		return nil, errors.NewMissingArgumentError("Louvain.FitPredict", "graph", "a neighbour graph is required")
	}
	if g.Nodes == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "Louvain.FitPredict")
	}
	if err := l.rule.Validate(); err != nil && l.resolution <= 0 {
		return nil, err
	}
	resolution := l.Resolution(g.Nodes)
	if math.IsNaN(resolution) || resolution <= 0 {
		return nil, errors.NewValidationError("resolution", "must be positive", resolution)
	}

	wg := g.Weighted()
	var communities [][]graph.Node
	quiet := log.WithMinLevel(l.logger, log.LevelError)
	err := errors.SafeExecute("louvain modularization", func() error {
		src := rand.NewPCG(l.randomState, l.randomState)
		reduced := community.Modularize(wg, resolution, src)
		communities = reduced.Communities()
		l.modularity = 0
		if len(g.Edges) > 0 {
			l.modularity = community.Q(wg, communities, resolution)
		}
		return nil
	})
	if err != nil {
		quiet.Error("Louvain modularization failed", "error", err)
		return nil, err
	}

	l.labels = labelCommunities(g.Nodes, communities)
	l.logger.Debug("Over-clustering completed",
		log.OperationKey, log.OperationOverCluster,
		log.CellsKey, g.Nodes,
		log.ClustersKey, len(communities),
		log.ResolutionKey, resolution,
		log.ModularityKey, l.modularity,
	)
	return append([]string(nil), l.labels...), nil
}

// Modularity は直近の FitPredict で得られた分割のモジュラリティ Q を返す
func (l *Louvain) Modularity() float64 {
	return l.modularity
}

// labelCommunities はコミュニティをサイズの降順（同サイズは最小ノード番号の昇順）に
// 並べ、その順位を ID として各ノードに割り当てる
func labelCommunities(n int, communities [][]graph.Node) []string {
	type group struct {
		min     int64
		members []int64
	}
	groups := make([]group, 0, len(communities))
	for _, c := range communities {
		if len(c) == 0 {
			continue
		}
		g := group{min: c[0].ID(), members: make([]int64, len(c))}
		for i, node := range c {
			id := node.ID()
			g.members[i] = id
			if id < g.min {
				g.min = id
			}
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].members) != len(groups[j].members) {
			return len(groups[i].members) > len(groups[j].members)
		}
		return groups[i].min < groups[j].min
	})

	labels := make([]string, n)
	for rank, g := range groups {
		id := strconv.Itoa(rank)
		for _, m := range g.members {
			labels[m] = id
		}
	}
	return labels
}
