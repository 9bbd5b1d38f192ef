package artifact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/missatech/breach-analytics/domain/entity"
)

// ErrNotFound reports that no artifact exists for the requested model.
var ErrNotFound = errors.New("model artifact not found")

// FSStore keeps one artifact file per model under a root directory.
// Writes go through a temp file and rename, so readers never observe a
// half-written artifact.
type FSStore struct {
	root   string
	logger *zap.Logger
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, logger *zap.Logger) (*FSStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		return nil, entity.NewValidationError("artifacts.dir", "artifact directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create artifact directory")
	}
	return &FSStore{root: root, logger: logger.Named("artifact_fs")}, nil
}

func (s *FSStore) path(modelName string) (string, error) {
	if !validModelName.MatchString(modelName) {
		return "", entity.NewValidationError("model_name", "model name must match [a-z0-9_-]+")
	}
	return filepath.Join(s.root, modelName+".bin"), nil
}

// Save writes the envelope for its model, replacing any previous artifact.
func (s *FSStore) Save(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(env.ModelName)
	if err != nil {
		return err
	}

	data, err := Encode(env)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, env.ModelName+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create artifact temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close artifact temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to publish artifact")
	}

	s.logger.Info("artifact saved",
		zap.String("model", env.ModelName),
		zap.String("run_id", env.RunID),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads the stored envelope for a model. The caller verifies it.
func (s *FSStore) Load(ctx context.Context, modelName string) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	path, err := s.path(modelName)
	if err != nil {
		return Envelope{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Envelope{}, errors.Wrapf(ErrNotFound, "model %s", modelName)
		}
		return Envelope{}, errors.Wrap(err, "failed to read artifact")
	}
	return Decode(data)
}
