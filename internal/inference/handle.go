package inference

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/YuminosukeSato/heartrisk/core/model"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

// Loaded is an immutable, ready-to-serve model together with its explainer.
type Loaded struct {
	Model    *gbdt.Model
	Header   *model.ArtifactHeader
	Path     string
	LoadedAt time.Time

	explainer    *gbdt.TreeSHAP
	explainerErr error

	// attribution key per model feature
	keys []string
}

// NewLoaded prepares m for serving. A model that cannot be explained is still
// served; attribution requests then report the explainer error.
func NewLoaded(m *gbdt.Model, header *model.ArtifactHeader, path string) (*Loaded, error) {
	if m == nil {
		return nil, errors.NewModelUnavailableError("nil model")
	}
	l := &Loaded{
		Model:    m,
		Header:   header,
		Path:     path,
		LoadedAt: time.Now().UTC(),
		keys:     make([]string, len(m.FeatureNames)),
	}
	l.explainer, l.explainerErr = gbdt.NewTreeSHAP(m)
	for i, name := range m.FeatureNames {
		if src, ok := featureSources[name]; ok {
			l.keys[i] = src
		} else {
			l.keys[i] = name
		}
	}
	return l, nil
}

// row builds the model input for req in the artifact's feature order.
func (l *Loaded) row(req *Request) ([]float64, error) {
	row := make([]float64, len(l.Model.FeatureNames))
	for i, name := range l.Model.FeatureNames {
		src, ok := featureSources[name]
		if !ok {
			return nil, errors.NewPredictionError("inference.row",
				errors.Newf("model feature %q has no request source", name))
		}
		v, ok := req.field(src)
		if !ok {
			v, ok = optionalDefaults[src]
		}
		if !ok {
			return nil, errors.NewPredictionError("inference.row",
				errors.Newf("no value for model feature %q", name))
		}
		row[i] = v
	}
	return row, nil
}

// ModelHandle holds the model currently being served. Readers take a
// snapshot without locking; writers replace the whole model in one step.
type ModelHandle struct {
	current atomic.Pointer[Loaded]
	mu      sync.Mutex
}

// Snapshot returns the current model, or nil if none is loaded.
func (h *ModelHandle) Snapshot() *Loaded {
	return h.current.Load()
}

// Swap installs l and returns the previously served model.
func (h *ModelHandle) Swap(l *Loaded) *Loaded {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.Swap(l)
}

// Load reads the artifact at path and installs it. On failure the current
// model, if any, keeps being served.
func (h *ModelHandle) Load(path string) (*Loaded, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, header, err := gbdt.LoadModel(path)
	if err != nil {
		return nil, err
	}
	l, err := NewLoaded(m, header, path)
	if err != nil {
		return nil, err
	}
	h.current.Store(l)
	return l, nil
}
