package actionlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
)

// ArchiveCleanupError indicates the archive was created but the source
// journal could not be removed.
type ArchiveCleanupError struct {
	ArchivePath string
	JournalPath string
	CleanupErr  error
}

func (e *ArchiveCleanupError) Error() string {
	return fmt.Sprintf("archive created at %s but failed to remove journal %s: %v",
		e.ArchivePath, e.JournalPath, e.CleanupErr)
}

func (e *ArchiveCleanupError) Unwrap() error {
	return e.CleanupErr
}

// archiveJournal compresses a journal file with zstd and removes the source.
func archiveJournal(journalPath, archivePath string) error {
	src, err := os.Open(journalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		dst.Close()
		os.Remove(archivePath)
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	written, err := io.Copy(enc, src)
	if err != nil {
		enc.Close()
		dst.Close()
		os.Remove(archivePath) // partial file
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := enc.Close(); err != nil {
		dst.Close()
		os.Remove(archivePath)
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to close archive: %w", err)
	}

	log.Info().
		Int64("original_bytes", written).
		Str("archive_path", archivePath).
		Msg("Journal archived with zstd compression")

	if err := os.Remove(journalPath); err != nil {
		return &ArchiveCleanupError{
			ArchivePath: archivePath,
			JournalPath: journalPath,
			CleanupErr:  err,
		}
	}

	return nil
}

// ReadArchive decodes the actions in a compressed journal archive.
func ReadArchive(archivePath string) ([]*models.Action, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	defer dec.Close()

	return ReadJournal(dec)
}

// ListArchives returns archived journals in dir, oldest first.
func ListArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".journal.zst") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)
	return paths, nil
}

// CleanupArchives removes archives last modified before now-retention.
func CleanupArchives(dir string, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	paths, err := ListArchives(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	deleted := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to stat archive, skipping")
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Info().Str("archive_dir", dir).Int("deleted_files", deleted).Msg("Archive cleanup completed")
	}

	return deleted, nil
}
