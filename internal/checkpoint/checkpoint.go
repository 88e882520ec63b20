// Package checkpoint persists model parameters as a msgpack document.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// FormatVersion is written into every checkpoint
const FormatVersion = "1"

// WeightTensor is one serialized parameter
type WeightTensor struct {
	Name  string    `msgpack:"name"`
	Group string    `msgpack:"group"`
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

// Metadata describes where a checkpoint came from
type Metadata struct {
	Version   string    `msgpack:"version"`
	Model     string    `msgpack:"model"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// Checkpoint is the on-disk document
type Checkpoint struct {
	Metadata Metadata       `msgpack:"metadata"`
	Weights  []WeightTensor `msgpack:"weights"`
}

// Path returns <dir>/checkpoint.pth
func Path(dir string) string {
	return filepath.Join(dir, constants.CheckpointFile)
}

// Snapshot copies the model's parameters into a Checkpoint
func Snapshot(model interfaces.Forecaster) *Checkpoint {
	params := model.Parameters()
	ckpt := &Checkpoint{
		Metadata: Metadata{
			Version:   FormatVersion,
			Model:     model.Name(),
			CreatedAt: time.Now().UTC(),
		},
		Weights: make([]WeightTensor, 0, len(params)),
	}
	for _, p := range params {
		ckpt.Weights = append(ckpt.Weights, WeightTensor{
			Name:  p.Name,
			Group: p.Group.String(),
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float64(nil), p.Value...),
		})
	}
	return ckpt
}

// Save writes the model's parameters to path, replacing any previous file.
// The file is written next to path first and renamed into place.
func Save(model interfaces.Forecaster, path string) error {
	data, err := msgpack.Marshal(Snapshot(model))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to encode checkpoint")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to create checkpoint directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to create checkpoint file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to write checkpoint")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointWrite, "failed to move checkpoint into place")
	}
	return nil
}

// Read decodes the checkpoint at path without touching any model
func Read(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapError(errors.ErrCheckpointNotFound, errors.ErrorTypeCheckpoint,
				errors.CodeCheckpointNotFound, fmt.Sprintf("no checkpoint at %s", path))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint, errors.CodeCheckpointNotFound, "failed to read checkpoint")
	}

	var ckpt Checkpoint
	if err := msgpack.Unmarshal(data, &ckpt); err != nil {
		return nil, errors.WrapError(fmt.Errorf("%w: %w", errors.ErrCheckpointCorrupt, err),
			errors.ErrorTypeCheckpoint, errors.CodeCheckpointCorrupt, fmt.Sprintf("cannot decode %s", path))
	}
	return &ckpt, nil
}

// Load reads path and copies every stored weight into the model's
// parameter of the same name. The set of names, groups and shapes must
// match exactly.
func Load(model interfaces.Forecaster, path string) error {
	ckpt, err := Read(path)
	if err != nil {
		return err
	}
	return Restore(model, ckpt)
}

// Restore copies ckpt into the model's parameters
func Restore(model interfaces.Forecaster, ckpt *Checkpoint) error {
	params := model.Parameters()
	if len(params) != len(ckpt.Weights) {
		return mismatch(fmt.Sprintf("checkpoint has %d tensors, model %s has %d", len(ckpt.Weights), model.Name(), len(params)))
	}

	byName := make(map[string]*WeightTensor, len(ckpt.Weights))
	for i := range ckpt.Weights {
		byName[ckpt.Weights[i].Name] = &ckpt.Weights[i]
	}

	for _, p := range params {
		w, ok := byName[p.Name]
		if !ok {
			return mismatch(fmt.Sprintf("checkpoint has no tensor %q", p.Name))
		}
		if w.Group != p.Group.String() {
			return mismatch(fmt.Sprintf("tensor %q is in group %s, model expects %s", p.Name, w.Group, p.Group))
		}
		if len(w.Data) != p.Size() || !sameShape(w.Shape, p.Shape) {
			return mismatch(fmt.Sprintf("tensor %q has shape %v, model expects %v", p.Name, w.Shape, p.Shape))
		}
	}

	for _, p := range params {
		copy(p.Value, byName[p.Name].Data)
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mismatch(msg string) error {
	return errors.WrapError(errors.ErrParameterMismatch, errors.ErrorTypeCheckpoint, errors.CodeParameterMismatch, msg)
}
