// Package metrics はラベル列どうしの比較と集計を提供する
package metrics

import (
	"sort"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// Accuracy は 2 つのラベル列の一致率を計算する
func Accuracy(yTrue, yPred []string) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "Accuracy")
	}
	if len(yTrue) != len(yPred) {
		return 0, errors.NewLengthMismatchError("Accuracy", "y_true", len(yTrue), "y_pred", len(yPred))
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// ContingencyTable は行ラベル × 列ラベルの出現回数表
// Rows と Cols はどちらも辞書順にソートされている
type ContingencyTable struct {
	Rows   []string
	Cols   []string
	Counts [][]int

	rowIndex map[string]int
}

// Contingency は rows[i] と cols[i] の組の出現回数を数える
func Contingency(rows, cols []string) (*ContingencyTable, error) {
	if len(rows) != len(cols) {
		return nil, errors.NewLengthMismatchError("Contingency", "rows", len(rows), "cols", len(cols))
	}

	t := &ContingencyTable{
		Rows: uniqueSorted(rows),
		Cols: uniqueSorted(cols),
	}
	t.rowIndex = indexOf(t.Rows)
	colIndex := indexOf(t.Cols)

	t.Counts = make([][]int, len(t.Rows))
	for i := range t.Counts {
		t.Counts[i] = make([]int, len(t.Cols))
	}
	for i := range rows {
		t.Counts[t.rowIndex[rows[i]]][colIndex[cols[i]]]++
	}
	return t, nil
}

// Winner は行 row で最も多い列ラベルを返す。同数なら辞書順で最小のラベル。
func (t *ContingencyTable) Winner(row string) (string, bool) {
	i, ok := t.rowIndex[row]
	if !ok {
		return "", false
	}
	best := -1
	for j, n := range t.Counts[i] {
		if best < 0 || n > t.Counts[i][best] {
			best = j
		}
	}
	if best < 0 {
		return "", false
	}
	return t.Cols[best], true
}

// RowTotal は行 row の合計を返す
func (t *ContingencyTable) RowTotal(row string) int {
	i, ok := t.rowIndex[row]
	if !ok {
		return 0
	}
	total := 0
	for _, n := range t.Counts[i] {
		total += n
	}
	return total
}

// LabelCount はラベルとその出現回数
type LabelCount struct {
	Label string
	Count int
}

// Frequencies はラベルの出現回数を降順で返す。同数はラベルの辞書順。
func Frequencies(labels []string) []LabelCount {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	out := make([]LabelCount, 0, len(counts))
	for l, n := range counts {
		out = append(out, LabelCount{Label: l, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

func indexOf(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}
