package celltype

import (
	"github.com/YuminosukeSato/celltypist/metrics"
	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// MajorityVote gives every cell the most frequent predicted label of its
// cluster. Ties go to the lexicographically smallest label.
func MajorityVote(predicted, clusters []string) ([]string, error) {
	if len(predicted) != len(clusters) {
		return nil, errors.NewLengthMismatchError("MajorityVote", "predicted labels", len(predicted), "clusters", len(clusters))
	}
	table, err := metrics.Contingency(clusters, predicted)
	if err != nil {
		return nil, err
	}

	winners := make(map[string]string, len(table.Rows))
	for _, c := range table.Rows {
		w, _ := table.Winner(c)
		winners[c] = w
	}
	out := make([]string, len(clusters))
	for i, c := range clusters {
		out[i] = winners[c]
	}
	return out, nil
}
