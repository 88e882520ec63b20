package data

import (
	"context"
	"math/rand"

	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// BatchLoader batches a WindowDataset, optionally shuffling each pass
type BatchLoader struct {
	dataset   *WindowDataset
	batchSize int
	shuffle   bool
	dropLast  bool
	rng       *rand.Rand
}

// NewBatchLoader creates a loader. seed drives the shuffle order.
func NewBatchLoader(ds *WindowDataset, batchSize int, shuffle, dropLast bool, seed int64) *BatchLoader {
	return &BatchLoader{
		dataset:   ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		dropLast:  dropLast,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Len returns the number of batches one pass yields
func (l *BatchLoader) Len() int {
	n := l.dataset.Len()
	if l.dropLast {
		return n / l.batchSize
	}
	return (n + l.batchSize - 1) / l.batchSize
}

func (l *BatchLoader) BatchSize() int { return l.batchSize }

// Iterate yields every batch once
func (l *BatchLoader) Iterate(ctx context.Context, fn func(i int, batch *interfaces.Batch) error) error {
	n := l.dataset.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	ds := l.dataset
	for bi := 0; bi < l.Len(); bi++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lo := bi * l.batchSize
		hi := lo + l.batchSize
		if hi > n {
			hi = n
		}
		size := hi - lo

		batch := &interfaces.Batch{
			X:     tensor.New(size, ds.seqLen, ds.Channels()),
			Y:     tensor.New(size, ds.labelLen+ds.predLen, ds.Channels()),
			XMark: tensor.New(size, ds.seqLen, ds.MarkChannels()),
			YMark: tensor.New(size, ds.labelLen+ds.predLen, ds.MarkChannels()),
		}
		for b, idx := range order[lo:hi] {
			ds.fill(idx, b, batch.X, batch.Y, batch.XMark, batch.YMark)
		}

		if err := fn(bi, batch); err != nil {
			return err
		}
	}
	return nil
}
