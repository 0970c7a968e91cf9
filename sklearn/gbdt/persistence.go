package gbdt

import (
	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// ArtifactKind identifies a binary-logistic GBDT payload inside a model artifact.
const ArtifactKind = "gbdt.binary_logistic"

// SaveModel writes m to path as a versioned, checksummed artifact.
// The file is replaced atomically.
func SaveModel(m *Model, path string) (*model.ArtifactHeader, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "refusing to save invalid model")
	}
	header, err := model.WriteArtifact(path, ArtifactKind, m.FeatureNames, m)
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("gbdt.persistence").Info("Model saved",
		log.OperationKey, log.OperationSave,
		log.ArtifactPathKey, path,
		log.ChecksumKey, header.Checksum,
		"trees", len(m.Trees),
	)
	return header, nil
}

// LoadModel reads and validates the model stored at path.
// A missing file yields errors.ErrArtifactNotFound; an unreadable or
// incompatible one yields an ArtifactError.
func LoadModel(path string) (*Model, *model.ArtifactHeader, error) {
	var m Model
	header, err := model.ReadArtifact(path, ArtifactKind, &m)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, errors.NewArtifactError(path, "invalid model structure", err)
	}
	if len(header.FeatureNames) != len(m.FeatureNames) {
		return nil, nil, errors.NewArtifactError(path, "header feature names disagree with model", nil)
	}
	for i, name := range header.FeatureNames {
		if m.FeatureNames[i] != name {
			return nil, nil, errors.NewArtifactError(path, "header feature names disagree with model",
				errors.Newf("column %d: %q vs %q", i, name, m.FeatureNames[i]))
		}
	}
	return &m, header, nil
}

// Save writes the fitted classifier to path.
func (c *GBDTClassifier) Save(path string) error {
	if err := c.state.RequireFitted("GBDTClassifier", "Save"); err != nil {
		return err
	}
	_, err := SaveModel(c.Model, path)
	return err
}

// LoadClassifier loads a classifier previously written by Save.
func LoadClassifier(path string) (*GBDTClassifier, error) {
	m, _, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return FromModel(m), nil
}
