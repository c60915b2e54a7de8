package textclf

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Config controls one training attempt. Loop hyperparameters mirror
// domain.TrainLoopConfig; the rest shape the run itself.
type Config struct {
	DropoutP    float64 `json:"dropout_p"`
	LR          float64 `json:"lr"`
	LRFactor    float64 `json:"lr_factor"`
	LRPatience  int     `json:"lr_patience"`
	Epochs      int     `json:"epochs"`
	BatchSize   int     `json:"batch_size"`
	Seed        int64   `json:"seed"`
	ValFraction float64 `json:"val_fraction"`
}

func ConfigFromLoop(loop domain.TrainLoopConfig, epochs, batchSize int, seed int64) Config {
	return Config{
		DropoutP:   loop.DropoutP,
		LR:         loop.LR,
		LRFactor:   loop.LRFactor,
		LRPatience: loop.LRPatience,
		Epochs:     epochs,
		BatchSize:  batchSize,
		Seed:       seed,
	}
}

func (c Config) withDefaults() Config {
	if c.Epochs <= 0 {
		c.Epochs = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ValFraction <= 0 || c.ValFraction >= 1 {
		c.ValFraction = 0.15
	}
	return c
}

func (c Config) Validate() error {
	loop := domain.TrainLoopConfig{DropoutP: c.DropoutP, LR: c.LR, LRFactor: c.LRFactor, LRPatience: c.LRPatience}
	return loop.Validate()
}

// EpochStats is the metric snapshot emitted after each epoch.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	LR        float64
}

func (s EpochStats) Values() map[string]float64 {
	return map[string]float64{
		"train_loss": s.TrainLoss,
		"val_loss":   s.ValLoss,
		"lr":         s.LR,
	}
}

// Train fits a model on labeled records. onEpoch fires after every epoch so
// callers can stream metrics while training is still in flight; a non-nil
// return aborts the attempt. The learning rate decays by LRFactor once the
// validation loss has not improved for LRPatience consecutive epochs.
func Train(ctx context.Context, records []dataset.Record, cfg Config, onEpoch func(EpochStats) error) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("need at least 2 labeled records, got %d", len(records))
	}
	for i, r := range records {
		if r.Tag == "" {
			return nil, fmt.Errorf("record %d has no tag; training data must be labeled", i)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	model, examples := initModel(records)
	train, val := split(examples, cfg.ValFraction, rng)

	lr := cfg.LR
	bestVal := math.Inf(1)
	badEpochs := 0

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
		trainLoss := model.fitEpoch(train, lr, cfg.DropoutP, cfg.BatchSize, rng)

		valLoss := trainLoss
		if len(val) > 0 {
			valLoss = model.loss(val)
		}

		if valLoss < bestVal-1e-6 {
			bestVal = valLoss
			badEpochs = 0
		} else {
			badEpochs++
			if badEpochs > cfg.LRPatience {
				lr *= cfg.LRFactor
				badEpochs = 0
			}
		}

		if onEpoch != nil {
			if err := onEpoch(EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, LR: lr}); err != nil {
				return nil, err
			}
		}
	}
	return model, nil
}

type example struct {
	tokens []string
	class  int
}

func initModel(records []dataset.Record) (*Model, []example) {
	seen := map[string]bool{}
	for _, r := range records {
		seen[r.Tag] = true
	}
	classes := sortedClasses(seen)
	classIdx := classIndex(classes)

	vocab := map[string]int{}
	examples := make([]example, 0, len(records))
	for _, r := range records {
		tokens := Tokenize(r.Text())
		for _, token := range tokens {
			if _, ok := vocab[token]; !ok {
				vocab[token] = len(vocab)
			}
		}
		examples = append(examples, example{tokens: tokens, class: classIdx[r.Tag]})
	}

	weights := make([][]float64, len(classes))
	for i := range weights {
		weights[i] = make([]float64, len(vocab)+1)
	}
	return &Model{Classes: classes, Vocab: vocab, Weights: weights}, examples
}

func split(examples []example, valFraction float64, rng *rand.Rand) (train, val []example) {
	shuffled := append([]example(nil), examples...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	n := int(float64(len(shuffled)) * valFraction)
	if n == 0 && len(shuffled) > 4 {
		n = 1
	}
	return shuffled[n:], shuffled[:n]
}

// fitEpoch runs one pass of mini-batch gradient descent and returns the
// mean cross-entropy over the pass.
func (m *Model) fitEpoch(train []example, lr, dropout float64, batchSize int, rng *rand.Rand) float64 {
	var totalLoss float64
	for start := 0; start < len(train); start += batchSize {
		end := min(start+batchSize, len(train))
		batch := train[start:end]

		grads := make(map[int]map[int]float64, len(m.Classes))
		for _, ex := range batch {
			tokens := ex.tokens
			if dropout > 0 {
				tokens = dropTokens(tokens, dropout, rng)
			}
			x := m.features(tokens)
			probs := m.probabilities(x)
			totalLoss += -math.Log(math.Max(probs[ex.class], 1e-12))

			for c := range m.Classes {
				indicator := 0.0
				if c == ex.class {
					indicator = 1
				}
				delta := indicator - probs[c]
				if delta == 0 {
					continue
				}
				row := grads[c]
				if row == nil {
					row = map[int]float64{}
					grads[c] = row
				}
				for i, v := range x {
					if v != 0 {
						row[i] += delta * v
					}
				}
			}
		}

		scale := lr / float64(len(batch))
		for c, row := range grads {
			for i, g := range row {
				m.Weights[c][i] += scale * g
			}
		}
	}
	if len(train) == 0 {
		return 0
	}
	return totalLoss / float64(len(train))
}

func (m *Model) loss(examples []example) float64 {
	var total float64
	for _, ex := range examples {
		probs := m.probabilities(m.features(ex.tokens))
		total += -math.Log(math.Max(probs[ex.class], 1e-12))
	}
	return total / float64(len(examples))
}

// dropTokens applies word-level dropout; at least one token survives so an
// example never degenerates to pure bias.
func dropTokens(tokens []string, p float64, rng *rand.Rand) []string {
	if len(tokens) == 0 {
		return tokens
	}
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if rng.Float64() < p {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		kept = append(kept, tokens[rng.Intn(len(tokens))])
	}
	return kept
}
