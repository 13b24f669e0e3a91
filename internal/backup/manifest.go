package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Component summarizes one backed-up component inside a manifest.
type Component struct {
	Name      string `json:"name"`
	Files     int    `json:"files"`
	SizeBytes int64  `json:"size_bytes"`
	Warning   string `json:"warning,omitempty"`
}

// Manifest is the summary record written after all components of a
// backup have been produced.
type Manifest struct {
	ID             string      `json:"id"`
	CreatedAt      time.Time   `json:"created_at"`
	Host           string      `json:"host,omitempty"`
	User           string      `json:"user,omitempty"`
	WorkspaceRoot  string      `json:"workspace_root"`
	Components     []Component `json:"components"`
	TotalSizeBytes int64       `json:"total_size_bytes"`
	Checksum       string      `json:"checksum"`
}

func (m *Manifest) add(c Component) {
	m.Components = append(m.Components, c)
	m.TotalSizeBytes += c.SizeBytes
}

// Warnings collects the per-component warnings.
func (m *Manifest) Warnings() []string {
	var out []string
	for _, c := range m.Components {
		if c.Warning != "" {
			out = append(out, c.Name+": "+c.Warning)
		}
	}
	return out
}

// writeManifest computes the aggregate checksum over the backup's
// contents and writes manifest.json last.
func (e *Engine) writeManifest(dir string, m *Manifest) error {
	sum, err := checksumDir(dir)
	if err != nil {
		return fmt.Errorf("checksum backup: %w", err)
	}
	m.Checksum = sum

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFilename), data, 0600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// VerifyChecksum recomputes a backup's checksum and compares it against
// the manifest. A mismatch means the backup was modified after creation.
func (e *Engine) VerifyChecksum(id string) error {
	dir := filepath.Join(e.BackupDir, id)
	m, err := readManifest(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	sum, err := checksumDir(dir)
	if err != nil {
		return err
	}
	if sum != m.Checksum {
		return fmt.Errorf("backup %s checksum mismatch: manifest %s, actual %s", id, m.Checksum, sum)
	}
	return nil
}

// checksumDir hashes the sorted (relative path, content hash) tuples of
// every file under dir, excluding the manifest itself.
func checksumDir(dir string) (string, error) {
	type fileSum struct {
		path string
		sum  string
	}

	var sums []fileSum
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == manifestFilename {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		sums = append(sums, fileSum{path: rel, sum: sum})
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(sums, func(i, j int) bool { return sums[i].path < sums[j].path })

	h := sha256.New()
	for _, fsum := range sums {
		fmt.Fprintf(h, "%s %s\n", fsum.path, fsum.sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
