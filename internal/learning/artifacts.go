package learning

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// On-disk artifact names inside the model directory.
const (
	ModelFile    = "trained_model.gob"
	FeaturesFile = "feature_names.json"
	MetadataFile = "model_metadata.json"

	// TrainingDateLayout is the persisted training_date format.
	TrainingDateLayout = "2006-01-02 15:04:05"
)

// Metadata is the record written with every successful training run. It is
// the only input of the retrain policy.
type Metadata struct {
	TrainingDate string `json:"training_date"`
	ModelKind    string `json:"model_kind"`
	FeatureCount int    `json:"feature_count"`
	// Generation ties the three artifacts of one run together.
	Generation string `json:"generation"`
}

// TrainedAt parses TrainingDate as a wall-clock time in loc.
func (m Metadata) TrainedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TrainingDateLayout, m.TrainingDate, loc)
}

// modelFile is the gob payload of ModelFile. The generation lets Load reject
// a model left behind by a different run than the columns and metadata.
type modelFile struct {
	Generation string
	Model      Regressor
}

type featureFile struct {
	Generation string   `json:"generation"`
	Columns    []string `json:"columns"`
}

// TrainedModel is a fully loaded, mutually consistent set of artifacts.
type TrainedModel struct {
	Model    Regressor
	Schema   *Schema
	Metadata Metadata
}

// ArtifactStore persists trained models in a directory. Each file is written
// to a temporary sibling and renamed into place, metadata last, so an
// interrupted run leaves either the previous generation or a detectable
// mismatch. Within a process the mutex makes Save and Load mutually atomic.
type ArtifactStore struct {
	dir string
	mu  sync.RWMutex
}

// NewArtifactStore returns a store rooted at dir.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Dir returns the artifact directory.
func (a *ArtifactStore) Dir() string {
	return a.dir
}

func (a *ArtifactStore) path(name string) string {
	return filepath.Join(a.dir, name)
}

// Save persists a model, its schema and metadata as one logical unit.
func (a *ArtifactStore) Save(model Regressor, schema *Schema, meta Metadata) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	modelTmp, err := a.writeTemp(ModelFile, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(&modelFile{Generation: meta.Generation, Model: model})
	})
	if err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	featTmp, err := a.writeTemp(FeaturesFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(featureFile{Generation: meta.Generation, Columns: schema.Columns()})
	})
	if err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("failed to write feature columns: %w", err)
	}
	metaTmp, err := a.writeTemp(MetadataFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		os.Remove(modelTmp)
		os.Remove(featTmp)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, mv := range []struct{ tmp, name string }{
		{modelTmp, ModelFile},
		{featTmp, FeaturesFile},
		{metaTmp, MetadataFile},
	} {
		if err := os.Rename(mv.tmp, a.path(mv.name)); err != nil {
			return fmt.Errorf("failed to install %s: %w", mv.name, err)
		}
	}
	return nil
}

func (a *ArtifactStore) writeTemp(name string, encode func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(a.dir, "."+name+"-*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	bw := bufio.NewWriter(f)
	if err := encode(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// ModelExists reports whether a model file is present.
func (a *ArtifactStore) ModelExists() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, err := os.Stat(a.path(ModelFile))
	return err == nil
}

// LoadMetadata reads the training metadata. Missing or unreadable metadata is
// ErrModelNotTrained.
func (a *ArtifactStore) LoadMetadata() (Metadata, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadMetadata()
}

func (a *ArtifactStore) loadMetadata() (Metadata, error) {
	var meta Metadata
	if err := readJSON(a.path(MetadataFile), &meta); err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata: %v", ErrModelNotTrained, err)
	}
	return meta, nil
}

// LoadSchema reads the persisted feature column list.
func (a *ArtifactStore) LoadSchema() (*Schema, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadSchema()
}

func (a *ArtifactStore) loadSchema() (*Schema, string, error) {
	var ff featureFile
	if err := readJSON(a.path(FeaturesFile), &ff); err != nil {
		return nil, "", fmt.Errorf("%w: feature columns: %v", ErrModelNotTrained, err)
	}
	s, err := NewSchema(ff.Columns)
	if err != nil {
		return nil, "", err
	}
	return s, ff.Generation, nil
}

// Load reads all three artifacts and checks that they belong to the same
// training run.
func (a *ArtifactStore) Load() (*TrainedModel, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	meta, err := a.loadMetadata()
	if err != nil {
		return nil, err
	}
	schema, gen, err := a.loadSchema()
	if err != nil {
		return nil, err
	}
	if gen != meta.Generation {
		return nil, fmt.Errorf("%w: feature columns belong to generation %q, metadata to %q",
			ErrModelNotTrained, gen, meta.Generation)
	}
	if schema.Len() != meta.FeatureCount {
		return nil, fmt.Errorf("%w: %d feature columns, metadata says %d",
			ErrModelNotTrained, schema.Len(), meta.FeatureCount)
	}

	f, err := os.Open(a.path(ModelFile))
	if err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrModelNotTrained, err)
	}
	defer f.Close()
	var mf modelFile
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&mf); err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrModelNotTrained, err)
	}
	if mf.Model == nil {
		return nil, fmt.Errorf("%w: model: empty artifact", ErrModelNotTrained)
	}
	if mf.Generation != meta.Generation {
		return nil, fmt.Errorf("%w: model belongs to generation %q, metadata to %q",
			ErrModelNotTrained, mf.Generation, meta.Generation)
	}
	return &TrainedModel{Model: mf.Model, Schema: schema, Metadata: meta}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty file")
	}
	return json.Unmarshal(data, v)
}
