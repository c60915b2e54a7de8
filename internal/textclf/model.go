// Package textclf implements the text classifier the pipeline trains,
// evaluates, and serves: a linear bag-of-words model with a softmax output,
// trained by SGD. The rest of the system treats it as an opaque artifact.
package textclf

import (
	"errors"
	"math"
	"sort"
)

type Model struct {
	Classes []string
	Vocab   map[string]int
	// Weights is len(Classes) rows by len(Vocab)+1 columns; the final
	// column is the class bias.
	Weights [][]float64
}

type Prediction struct {
	Label         string
	Probabilities map[string]float64
}

var ErrEmptyModel = errors.New("model has no classes")

// Predict classifies a title/description pair. The returned probabilities
// cover every known class and sum to 1.
func (m *Model) Predict(title, description string) (Prediction, error) {
	if m == nil || len(m.Classes) == 0 {
		return Prediction{}, ErrEmptyModel
	}
	tokens := Tokenize(title + " " + description)
	probs := m.probabilities(m.features(tokens))

	out := Prediction{Probabilities: make(map[string]float64, len(m.Classes))}
	bestIdx := 0
	for i, class := range m.Classes {
		out.Probabilities[class] = probs[i]
		if probs[i] > probs[bestIdx] {
			bestIdx = i
		}
	}
	out.Label = m.Classes[bestIdx]
	return out, nil
}

// features maps tokens to normalized term frequencies over the vocabulary,
// with the bias input appended.
func (m *Model) features(tokens []string) []float64 {
	x := make([]float64, len(m.Vocab)+1)
	known := 0
	for _, token := range tokens {
		if idx, ok := m.Vocab[token]; ok {
			x[idx]++
			known++
		}
	}
	if known > 0 {
		scale := 1 / float64(known)
		for i := range x[:len(x)-1] {
			x[i] *= scale
		}
	}
	x[len(x)-1] = 1
	return x
}

func (m *Model) probabilities(x []float64) []float64 {
	scores := make([]float64, len(m.Classes))
	for c, row := range m.Weights {
		var s float64
		for i, v := range x {
			if v != 0 {
				s += row[i] * v
			}
		}
		scores[c] = s
	}
	return softmax(scores)
}

func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func classIndex(classes []string) map[string]int {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

func sortedClasses(seen map[string]bool) []string {
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
