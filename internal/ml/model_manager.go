package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Artifact kinds.
const (
	KindScaler     = "scaler"
	KindClassifier = "classifier"
)

// ArtifactInfo describes a loaded model artifact.
type ArtifactInfo struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Type     string    `json:"type"`
	Version  string    `json:"version,omitempty"`
	Path     string    `json:"path"`
	SHA256   string    `json:"sha256"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Age is the time since the artifact file was last written.
func (a ArtifactInfo) Age() time.Duration {
	if a.ModTime.IsZero() {
		return 0
	}
	return time.Since(a.ModTime)
}

type scalerFile struct {
	Type         string    `json:"type"`
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	Min          []float64 `json:"min"`
}

type classifierFile struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Classes   []json.RawMessage `json:"classes"`
	NFeatures int               `json:"n_features"`
	BaseScore float64           `json:"base_score"`
	Trees     []Tree            `json:"trees"`
}

// LoadScaler reads a JSON scaler export ("standard" or "minmax").
func LoadScaler(name, path string) (Scaler, ArtifactInfo, error) {
	data, info, err := readArtifact(name, KindScaler, path)
	if err != nil {
		return nil, info, err
	}

	var f scalerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, info, fmt.Errorf("failed to parse scaler %s: %w", path, err)
	}
	info.Type = f.Type
	info.Version = f.Version

	var s Scaler
	switch f.Type {
	case "standard", "":
		info.Type = "standard"
		s, err = NewStandardScaler(f.Mean, f.Scale)
	case "minmax":
		s, err = NewMinMaxScaler(f.Min, f.Scale)
	default:
		err = fmt.Errorf("unsupported scaler type %q", f.Type)
	}
	if err != nil {
		return nil, info, fmt.Errorf("invalid scaler %s: %w", path, err)
	}
	if len(f.FeatureNames) > 0 && len(f.FeatureNames) != s.Arity() {
		return nil, info, fmt.Errorf("invalid scaler %s: %d feature names for %d features", path, len(f.FeatureNames), s.Arity())
	}
	return s, info, nil
}

// LoadClassifier reads a JSON tree-ensemble export.
func LoadClassifier(name, path string) (*TreeEnsemble, ArtifactInfo, error) {
	data, info, err := readArtifact(name, KindClassifier, path)
	if err != nil {
		return nil, info, err
	}

	var f classifierFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, info, fmt.Errorf("failed to parse classifier %s: %w", path, err)
	}
	info.Type = f.Type
	info.Version = f.Version

	classes := make([]string, len(f.Classes))
	for i, raw := range f.Classes {
		c, err := classLabel(raw)
		if err != nil {
			return nil, info, fmt.Errorf("invalid classifier %s: class %d: %w", path, i, err)
		}
		classes[i] = c
	}

	e, err := NewTreeEnsemble(EnsembleKind(f.Type), classes, f.NFeatures, f.Trees, f.BaseScore)
	if err != nil {
		return nil, info, fmt.Errorf("invalid classifier %s: %w", path, err)
	}
	return e, info, nil
}

// classLabel accepts string or numeric class labels; numbers are formatted
// without a trailing ".0" so that 1 and 1.0 both become "1".
func classLabel(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("unsupported class label %s", string(raw))
}

func readArtifact(name, kind, path string) ([]byte, ArtifactInfo, error) {
	info := ArtifactInfo{Name: name, Kind: kind, Path: path}

	st, err := os.Stat(path)
	if err != nil {
		return nil, info, fmt.Errorf("failed to stat %s artifact %s: %w", kind, path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, info, fmt.Errorf("failed to read %s artifact %s: %w", kind, path, err)
	}

	sum := sha256.Sum256(data)
	info.SHA256 = hex.EncodeToString(sum[:])
	info.Size = st.Size()
	info.ModTime = st.ModTime()
	info.LoadedAt = time.Now()
	return data, info, nil
}

// ModelPaths locates the scaler and classifier of one pipeline.
type ModelPaths struct {
	ScalerPath     string
	ClassifierPath string
}

// ModelManager loads the artifacts of every pipeline at startup and keeps
// their metadata for reporting.
type ModelManager struct {
	metrics   MetricsInterface
	pipelines []*Pipeline
	artifacts []ArtifactInfo
}

func NewModelManager(metrics MetricsInterface) *ModelManager {
	return &ModelManager{metrics: metrics}
}

// Load builds a pipeline for def from the artifacts at paths. Any failure is
// a startup failure.
func (mm *ModelManager) Load(def Definition, paths ModelPaths) (*Pipeline, error) {
	scaler, scalerInfo, err := LoadScaler(def.Name+"_scaler", paths.ScalerPath)
	if err != nil {
		return nil, err
	}
	clf, clfInfo, err := LoadClassifier(def.Name+"_classifier", paths.ClassifierPath)
	if err != nil {
		return nil, err
	}

	p, err := NewPipeline(def, scaler, clf, mm.metrics)
	if err != nil {
		return nil, err
	}

	for _, info := range []ArtifactInfo{scalerInfo, clfInfo} {
		if mm.metrics != nil {
			mm.metrics.ModelAgeSet(info.Name, info.Age().Seconds())
		}
		log.Info().
			Str("artifact", info.Name).
			Str("type", info.Type).
			Str("path", info.Path).
			Str("sha256", info.SHA256).
			Msg("model artifact loaded")
	}

	mm.pipelines = append(mm.pipelines, p)
	mm.artifacts = append(mm.artifacts, scalerInfo, clfInfo)
	return p, nil
}

// Pipelines returns the loaded pipelines in load order.
func (mm *ModelManager) Pipelines() []*Pipeline {
	return append([]*Pipeline(nil), mm.pipelines...)
}

// Artifacts returns metadata for every loaded artifact.
func (mm *ModelManager) Artifacts() []ArtifactInfo {
	return append([]ArtifactInfo(nil), mm.artifacts...)
}
