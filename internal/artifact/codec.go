// Package artifact persists fitted models as versioned files and serves the current set.
//
// Layout under the artifact root:
//
//	CURRENT                    id of the published run
//	runs/<run-id>/             one complete, immutable artifact set
//	runs/.staging-<uuid>/      a publish in progress; never read
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

// SchemaVersion is written into every artifact. Readers reject any other version.
const SchemaVersion = 1

// Artifact file names.
const (
	FileScaler     = "scaler_params.json"
	FileModel      = "cluster_model.json"
	FileLabels     = "segment_label_map.json"
	FileIndex      = "product_index.json"
	FileMatrix     = "similarity_matrix.json"
	FileManifest   = "manifest.json"
	FileSegments   = "customer_segments.csv"
	currentPointer = "CURRENT"
	runsDir        = "runs"
	stagingPrefix  = ".staging-"
)

// kinds maps each JSON artifact to the kind tag stored inside it.
var kinds = map[string]string{
	FileScaler:   "scaler_params",
	FileModel:    "cluster_model",
	FileLabels:   "segment_label_map",
	FileIndex:    "product_index",
	FileMatrix:   "similarity_matrix",
	FileManifest: "manifest",
}

type envelope struct {
	Kind          string          `json:"kind"`
	Data          json.RawMessage `json:"data"`
	SchemaVersion int             `json:"schema_version"`
}

func encode(name string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return json.MarshalIndent(envelope{
		SchemaVersion: SchemaVersion,
		Kind:          kinds[name],
		Data:          data,
	}, "", "  ")
}

// decode reads one artifact file into payload. Every failure is an ArtifactMissingError.
func decode(name, path string, payload any) ([]byte, error) {
	// #nosec G304 - path is built from the artifact root and a fixed file name
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewArtifactMissingError(name, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, common.NewArtifactMissingError(name, path, fmt.Errorf("unreadable: %w", err))
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, common.NewArtifactMissingError(name, path,
			fmt.Errorf("schema version %d, want %d", env.SchemaVersion, SchemaVersion))
	}
	if env.Kind != kinds[name] {
		return nil, common.NewArtifactMissingError(name, path,
			fmt.Errorf("kind %q, want %q", env.Kind, kinds[name]))
	}
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, common.NewArtifactMissingError(name, path, fmt.Errorf("unreadable payload: %w", err))
	}
	return raw, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
