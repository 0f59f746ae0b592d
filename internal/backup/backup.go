// Package backup archives and restores the AquaBot database and config.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/HerbHall/aquabot/internal/store"
	"github.com/HerbHall/aquabot/internal/version"
)

// ManifestName is the archive entry describing the backup.
const ManifestName = "manifest.json"

// Manifest records where a backup came from.
type Manifest struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Database  string    `json:"database"`
	Config    string    `json:"config,omitempty"`
}

// Backup writes a gzip'd tar archive holding a consistent snapshot of the
// database at dbPath, the config file when configPath is set, and a
// manifest. The database may be in use; the snapshot is taken with
// VACUUM INTO.
func Backup(ctx context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %s", dbPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file not found: %s", configPath)
		}
	}

	tmpDir, err := os.MkdirTemp("", "aquabot-backup-")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, filepath.Base(dbPath))
	if err := snapshotDB(ctx, dbPath, snapshot); err != nil {
		return err
	}

	manifest := Manifest{
		Version:   version.Short(),
		CreatedAt: time.Now().UTC(),
		Database:  filepath.Base(dbPath),
	}
	if configPath != "" {
		manifest.Config = filepath.Base(configPath)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	tmpArchive := archivePath + ".partial"
	if err := writeArchive(tmpArchive, manifest, snapshot, configPath); err != nil {
		os.Remove(tmpArchive)
		return err
	}
	if err := os.Rename(tmpArchive, archivePath); err != nil {
		os.Remove(tmpArchive)
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func snapshotDB(ctx context.Context, dbPath, dest string) error {
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.DB().ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

func writeArchive(path string, manifest Manifest, dbFile, configPath string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeEntry(tw, ManifestName, int64(len(body)), manifest.CreatedAt, bytes.NewReader(body)); err != nil {
		return err
	}
	if err := addFile(tw, dbFile, manifest.Database); err != nil {
		return err
	}
	if configPath != "" {
		if err := addFile(tw, configPath, manifest.Config); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}
	return f.Close()
}

func addFile(tw *tar.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	return writeEntry(tw, name, info.Size(), info.ModTime(), f)
}

func writeEntry(tw *tar.Writer, name string, size int64, modTime time.Time, r io.Reader) error {
	hdr := &tar.Header{
		Name:     name,
		Size:     size,
		Mode:     0o600,
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, r); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
