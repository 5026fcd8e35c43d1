package artifact

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/shopper-spectrum/internal/cluster"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/scaler"
	"github.com/Veraticus/shopper-spectrum/internal/similarity"
)

// ErrRunNotFound is returned when a run id does not name a published run.
var ErrRunNotFound = errors.New("artifact run not found")

// Manager publishes, loads and prunes artifact runs under one root directory.
type Manager struct {
	root string
	now  func() time.Time
}

// NewManager creates a manager rooted at dir. Nothing is created until the first publish.
func NewManager(dir string) *Manager {
	return &Manager{root: dir, now: time.Now}
}

// Root returns the artifact root directory.
func (m *Manager) Root() string {
	return m.root
}

// Publish writes a complete run and makes it current. Files are written into a staging
// directory, synced, then renamed into place; the CURRENT pointer is swapped last. If any
// step fails the previously published run stays current and no partial run is visible.
func (m *Manager) Publish(ctx context.Context, b *Bundle, segments []model.CustomerSegment) (*Manifest, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to publish invalid artifacts: %w", err)
	}

	runs := filepath.Join(m.root, runsDir)
	if err := os.MkdirAll(runs, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	staging := filepath.Join(runs, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0750); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	published := false
	defer func() {
		if published {
			return
		}
		if err := os.RemoveAll(staging); err != nil {
			slog.Error("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	createdAt := m.now().UTC()
	manifest := b.Manifest
	manifest.RunID = fmt.Sprintf("%s-%s", createdAt.Format("20060102T150405Z"), uuid.NewString()[:8])
	manifest.CreatedAt = createdAt
	manifest.SchemaVersion = SchemaVersion
	manifest.K = b.Model.K
	manifest.Products = b.Index.Len()
	manifest.Files = make(map[string]string)

	payloads := []struct {
		payload any
		name    string
	}{
		{name: FileScaler, payload: b.Scaler},
		{name: FileModel, payload: b.Model},
		{name: FileLabels, payload: labelMapPayload{Labels: b.Labels(), Profiles: b.Profiles}},
		{name: FileIndex, payload: productIndexPayload{Products: b.Index.Names()}},
		{name: FileMatrix, payload: b.Matrix},
	}
	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := encode(p.name, p.payload)
		if err != nil {
			return nil, err
		}
		if err := writeSynced(filepath.Join(staging, p.name), data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
		manifest.Files[p.name] = checksum(data)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := encodeSegments(segments)
	if err != nil {
		return nil, err
	}
	if err := writeSynced(filepath.Join(staging, FileSegments), data); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", FileSegments, err)
	}
	manifest.Files[FileSegments] = checksum(data)

	data, err = encode(FileManifest, manifest)
	if err != nil {
		return nil, err
	}
	if err := writeSynced(filepath.Join(staging, FileManifest), data); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", FileManifest, err)
	}
	if err := syncDir(staging); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final := filepath.Join(runs, manifest.RunID)
	if err := os.Rename(staging, final); err != nil {
		return nil, fmt.Errorf("failed to move run into place: %w", err)
	}
	published = true

	if err := m.setCurrent(manifest.RunID); err != nil {
		return nil, err
	}

	slog.Info("Published artifacts", "run_id", manifest.RunID, "path", final, "k", manifest.K, "products", manifest.Products)
	return &manifest, nil
}

// Current returns the id of the published run.
func (m *Manager) Current() (string, error) {
	path := filepath.Join(m.root, currentPointer)
	// #nosec G304 - path is inside the artifact root
	data, err := os.ReadFile(path)
	if err != nil {
		return "", common.NewArtifactMissingError(currentPointer, path, err)
	}
	id := strings.TrimSpace(string(data))
	if err := validRunID(id); err != nil {
		return "", common.NewArtifactMissingError(currentPointer, path, err)
	}
	return id, nil
}

// LoadCurrent loads the published run.
func (m *Manager) LoadCurrent() (*Bundle, error) {
	id, err := m.Current()
	if err != nil {
		return nil, err
	}
	return m.Load(id)
}

// Load reads and verifies a run. Every failure is reported as an ArtifactMissingError.
func (m *Manager) Load(runID string) (*Bundle, error) {
	if err := validRunID(runID); err != nil {
		return nil, common.NewArtifactMissingError(runID, m.root, err)
	}
	dir := filepath.Join(m.root, runsDir, runID)

	var manifest Manifest
	if _, err := decode(FileManifest, filepath.Join(dir, FileManifest), &manifest); err != nil {
		return nil, err
	}

	verified := func(name string, payload any) error {
		path := filepath.Join(dir, name)
		raw, err := decode(name, path, payload)
		if err != nil {
			return err
		}
		if want := manifest.Files[name]; want != "" && want != checksum(raw) {
			return common.NewArtifactMissingError(name, path, errors.New("checksum does not match manifest"))
		}
		return nil
	}

	b := &Bundle{Manifest: manifest, Scaler: &scaler.Params{}, Model: &cluster.Model{}, Matrix: &similarity.Matrix{}}
	if err := verified(FileScaler, b.Scaler); err != nil {
		return nil, err
	}
	if err := verified(FileModel, b.Model); err != nil {
		return nil, err
	}
	var labels labelMapPayload
	if err := verified(FileLabels, &labels); err != nil {
		return nil, err
	}
	b.Profiles = labels.Profiles

	var products productIndexPayload
	if err := verified(FileIndex, &products); err != nil {
		return nil, err
	}
	index, err := similarity.NewProductIndex(products.Products)
	if err != nil {
		return nil, common.NewArtifactMissingError(FileIndex, filepath.Join(dir, FileIndex), err)
	}
	b.Index = index

	if err := verified(FileMatrix, b.Matrix); err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		return nil, common.NewArtifactMissingError(runID, dir, err)
	}
	return b, nil
}

// List returns every complete run, newest first.
func (m *Manager) List() ([]Manifest, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, runsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	runs := make([]Manifest, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		var manifest Manifest
		path := filepath.Join(m.root, runsDir, entry.Name(), FileManifest)
		if _, err := decode(FileManifest, path, &manifest); err != nil {
			slog.Debug("Skipping run without readable manifest", "run", entry.Name(), "error", err)
			continue
		}
		runs = append(runs, manifest)
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].RunID > runs[j].RunID
	})
	return runs, nil
}

// Prune deletes all but the newest keep runs and any abandoned staging directories.
// The current run is never deleted.
func (m *Manager) Prune(keep int) (int, error) {
	current, err := m.Current()
	if err != nil && !errors.Is(err, common.ErrArtifactMissing) {
		return 0, err
	}

	runs, err := m.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for i, run := range runs {
		if i < keep || run.RunID == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, runsDir, run.RunID)); err != nil {
			return removed, fmt.Errorf("failed to remove run %s: %w", run.RunID, err)
		}
		removed++
	}

	entries, err := os.ReadDir(filepath.Join(m.root, runsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return removed, err
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || m.now().Sub(info.ModTime()) < time.Hour {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, runsDir, entry.Name())); err != nil {
			slog.Warn("failed to remove abandoned staging directory", "name", entry.Name(), "error", err)
		}
	}

	if removed > 0 {
		slog.Info("Pruned artifact runs", "removed", removed, "kept", min(keep, len(runs)))
	}
	return removed, nil
}

func (m *Manager) setCurrent(runID string) error {
	path := filepath.Join(m.root, currentPointer)
	tmp := path + ".tmp-" + uuid.NewString()
	if err := writeSynced(tmp, []byte(runID+"\n")); err != nil {
		return fmt.Errorf("failed to write current pointer: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Error("failed to remove temporary pointer", "error", rmErr)
		}
		return fmt.Errorf("failed to swap current pointer: %w", err)
	}
	return syncDir(m.root)
}

func validRunID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || strings.HasPrefix(id, stagingPrefix) {
		return fmt.Errorf("%w: invalid run id %q", ErrRunNotFound, id)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	// #nosec G304 - path is inside the artifact root
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(path string) error {
	// #nosec G304 - path is inside the artifact root
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			slog.Error("failed to close directory", "path", path, "error", err)
		}
	}()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return nil
}

func encodeSegments(segments []model.CustomerSegment) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"CustomerID", "Recency", "Frequency", "Monetary", "Cluster", "Segment"}); err != nil {
		return nil, err
	}
	for _, s := range segments {
		if err := w.Write([]string{
			s.CustomerID,
			strconv.Itoa(s.Recency),
			strconv.Itoa(s.Frequency),
			strconv.FormatFloat(s.Monetary, 'f', 2, 64),
			strconv.Itoa(s.ClusterID),
			s.Label,
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", FileSegments, err)
	}
	return []byte(sb.String()), nil
}
