// Package data turns a multi-channel series into the train, validation and
// test loaders the experiment driver consumes.
package data

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Split fractions of the series
const (
	trainFraction = 0.7
	testFraction  = 0.2
)

// Options configures a Provider
type Options struct {
	SeqLen    int
	LabelLen  int
	PredLen   int
	Features  string
	Freq      string
	BatchSize int
	Scale     bool
	Seed      int64
}

// Provider windows a Frame into 70/10/20 train, validation and test splits.
// The validation and test windows start seq_len rows before their border so
// their first forecast begins right at the border.
type Provider struct {
	frame  *Frame
	opts   Options
	logger *logrus.Logger

	scaler  *DataScaler
	columns []int
	values  [][]float64
	marks   [][]float64
	borders map[string][2]int
}

// NewProvider prepares the splits of frame
func NewProvider(frame *Frame, opts Options, logger *logrus.Logger) (*Provider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		return nil, errors.NewConfigurationError(nil, fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize))
	}

	columns, err := selectColumns(opts.Features, len(frame.Columns))
	if err != nil {
		return nil, err
	}

	n := frame.Rows()
	numTrain := int(float64(n) * trainFraction)
	numTest := int(float64(n) * testFraction)
	numVali := n - numTrain - numTest

	p := &Provider{
		frame:   frame,
		opts:    opts,
		logger:  logger,
		columns: columns,
		borders: map[string][2]int{
			constants.SplitTrain: {0, numTrain},
			constants.SplitVal:   {numTrain - opts.SeqLen, numTrain + numVali},
			constants.SplitTest:  {n - numTest - opts.SeqLen, n},
		},
	}

	for split, b := range p.borders {
		if b[0] < 0 || b[1]-b[0] < opts.SeqLen+opts.PredLen {
			return nil, errors.WrapError(errors.ErrInsufficientData, errors.ErrorTypeData, errors.CodeInsufficientData,
				fmt.Sprintf("%d rows leave split %s too short for seq_len %d and pred_len %d", n, split, opts.SeqLen, opts.PredLen))
		}
	}

	selected := make([][]float64, n)
	for i, row := range frame.Values {
		selected[i] = make([]float64, len(columns))
		for j, c := range columns {
			selected[i][j] = row[c]
		}
	}

	if opts.Scale {
		p.scaler = NewDataScaler(ScalerZScore)
		if err := p.scaler.Fit(selected[:numTrain]); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeData, errors.CodeInsufficientData, "failed to fit scaler")
		}
		selected = p.scaler.Transform(selected)
	}
	p.values = selected

	p.marks, err = TimeFeatures(frame.Timestamps, opts.Freq)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"rows":     n,
		"train":    numTrain,
		"val":      numVali,
		"test":     numTest,
		"features": opts.Features,
		"channels": len(columns),
	}).Debug("Data splits prepared")
	return p, nil
}

// Channels returns the number of value channels per step
func (p *Provider) Channels() int {
	return len(p.columns)
}

// Get returns the dataset and loader of split. Train and validation
// loaders shuffle; every loader drops the last incomplete batch.
func (p *Provider) Get(split string) (interfaces.Dataset, interfaces.Loader, error) {
	b, ok := p.borders[split]
	if !ok {
		return nil, nil, errors.NewConfigurationError(errors.ErrUnknownSplit,
			fmt.Sprintf("unknown split %q, want train, val or test", split))
	}

	ds := &WindowDataset{
		values:   p.values[b[0]:b[1]],
		marks:    p.marks[b[0]:b[1]],
		seqLen:   p.opts.SeqLen,
		labelLen: p.opts.LabelLen,
		predLen:  p.opts.PredLen,
		scaler:   p.scaler,
	}

	shuffle := split != constants.SplitTest
	loader := NewBatchLoader(ds, p.opts.BatchSize, shuffle, true, p.opts.Seed+int64(len(split)))

	p.logger.WithFields(logrus.Fields{"split": split, "windows": ds.Len(), "batches": loader.Len()}).Info("Split loaded")
	return ds, loader, nil
}

func selectColumns(features string, total int) ([]int, error) {
	switch strings.ToUpper(features) {
	case constants.FeaturesMultivariate, constants.FeaturesMultiToSingle:
		cols := make([]int, total)
		for i := range cols {
			cols[i] = i
		}
		return cols, nil
	case constants.FeaturesUnivariate:
		return []int{total - 1}, nil
	default:
		return nil, errors.NewConfigurationError(errors.ErrUnknownFeatureMode,
			fmt.Sprintf("unknown feature mode %q, want M, S or MS", features))
	}
}
