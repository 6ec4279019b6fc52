package actionlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/charonauth/internal/models"
)

const activeJournalName = "actions.journal"

// JournalConfig configures a Journal.
type JournalConfig struct {
	// Dir holds the active journal file.
	Dir string

	// ArchiveDir receives rotated, compressed journals. Default: Dir/archive
	ArchiveDir string

	// MaxBytes triggers rotation once the active file reaches it.
	// Default: 64MiB
	MaxBytes int64
}

func (c *JournalConfig) applyDefaults() {
	if c.ArchiveDir == "" {
		c.ArchiveDir = filepath.Join(c.Dir, "archive")
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 64 << 20
	}
}

// Journal is an append-only local file of checksummed action records.
type Journal struct {
	mu   sync.Mutex
	cfg  JournalConfig
	file *os.File
	path string
	size int64
	// closed is set by Close. A nil file without closed means a rotation
	// lost the active file and the next Append reopens it.
	closed bool

	nextSequence uint64
	now          func() time.Time
}

// OpenJournal opens or creates the active journal in cfg.Dir. A torn or
// corrupt tail left by a crash is truncated.
func OpenJournal(cfg JournalConfig) (*Journal, error) {
	if cfg.Dir == "" {
		return nil, errors.New("journal directory is required")
	}
	cfg.applyDefaults()

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if err := os.MkdirAll(cfg.ArchiveDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	j := &Journal{
		cfg:  cfg,
		path: filepath.Join(cfg.Dir, activeJournalName),
		now:  time.Now,
	}

	if err := j.open(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) open() error {
	file, err := os.OpenFile(j.path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	j.file = file
	j.nextSequence = 1

	if info.Size() == 0 {
		if _, err := file.Write(encodeHeader()); err != nil {
			file.Close()
			j.file = nil
			return fmt.Errorf("failed to write header: %w", err)
		}
		j.size = headerSize
		return nil
	}

	if err := j.recover(); err != nil {
		file.Close()
		j.file = nil
		return err
	}

	return nil
}

// recover scans the active file, truncating at the first damaged record,
// and positions the file for appends.
func (j *Journal) recover() error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(j.file, header); err != nil {
		return fmt.Errorf("%w: failed to read header: %v", ErrCorrupt, err)
	}
	if err := checkHeader(header); err != nil {
		return err
	}

	offset := int64(headerSize)
	records := 0
	for {
		seq, _, n, err := readRecord(j.file)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().
				Err(err).
				Int64("offset", offset).
				Msg("Damaged journal record, truncating")
			if err := j.file.Truncate(offset); err != nil {
				return fmt.Errorf("failed to truncate journal: %w", err)
			}
			break
		}
		offset += n
		records++
		if seq >= j.nextSequence {
			j.nextSequence = seq + 1
		}
	}

	if _, err := j.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	j.size = offset

	log.Debug().
		Str("path", j.path).
		Int("records", records).
		Uint64("next_sequence", j.nextSequence).
		Msg("Journal recovered")

	return nil
}

// Append writes an action and syncs it to disk, rotating the journal when
// it reaches the size limit.
func (j *Journal) Append(ctx context.Context, action *models.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("journal is closed")
	}
	if j.file == nil {
		if err := j.reopenLocked(); err != nil {
			return err
		}
	}

	record := buildRecord(j.nextSequence, j.now(), encodeAction(action))

	n, err := j.file.Write(record)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	j.nextSequence++
	j.size += int64(n)

	if j.size >= j.cfg.MaxBytes {
		if err := j.rotateLocked(); err != nil {
			return fmt.Errorf("failed to rotate journal: %w", err)
		}
	}

	return nil
}

// Rotate archives the active file and starts a new one.
func (j *Journal) Rotate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("journal is closed")
	}
	if j.file == nil {
		if err := j.reopenLocked(); err != nil {
			return err
		}
	}
	return j.rotateLocked()
}

// reopenLocked restores the active file after a failed rotation, keeping the
// sequence monotonic.
func (j *Journal) reopenLocked() error {
	sequence := j.nextSequence
	if err := j.open(); err != nil {
		return fmt.Errorf("failed to reopen journal: %w", err)
	}
	if sequence > j.nextSequence {
		j.nextSequence = sequence
	}
	log.Debug().Str("path", j.path).Msg("Journal reopened")
	return nil
}

func (j *Journal) rotateLocked() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.file = nil

	name := fmt.Sprintf("actions-%d.journal.zst", j.now().UnixNano())
	if err := archiveJournal(j.path, filepath.Join(j.cfg.ArchiveDir, name)); err != nil {
		var cleanupErr *ArchiveCleanupError
		if !errors.As(err, &cleanupErr) {
			// reopen the untouched journal so appends can continue
			if openErr := j.reopenLocked(); openErr != nil {
				log.Error().Err(openErr).Msg("Journal unavailable after failed rotation, retrying on next append")
				return errors.Join(err, openErr)
			}
			return err
		}
		log.Warn().Err(err).Msg("Journal archived but not removed")
		if err := os.Truncate(j.path, 0); err != nil {
			log.Error().Err(err).Msg("Journal unavailable after rotation, retrying on next append")
			return fmt.Errorf("failed to reset journal: %w", err)
		}
	}

	if err := j.reopenLocked(); err != nil {
		log.Error().Err(err).Msg("Journal unavailable after rotation, retrying on next append")
		return err
	}

	return nil
}

// Close closes the active file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Path returns the active file path.
func (j *Journal) Path() string { return j.path }

// ArchiveDir returns the directory receiving rotated journals.
func (j *Journal) ArchiveDir() string { return j.cfg.ArchiveDir }

// readRecord reads one framed record and returns its sequence, payload and
// size. It returns io.EOF only at a clean record boundary.
func readRecord(r io.Reader) (uint64, []byte, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, fmt.Errorf("%w: failed to read record length: %v", ErrCorrupt, err)
	}

	length := le.Uint32(lenBuf[:])
	if length < recordOverhead || length > maxRecordSize {
		return 0, nil, 0, fmt.Errorf("%w: invalid record length %d", ErrCorrupt, length)
	}

	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, 0, fmt.Errorf("%w: failed to read record: %v", ErrCorrupt, err)
	}

	seq, payload, err := parseRecord(body)
	if err != nil {
		return 0, nil, 0, err
	}

	return seq, payload, int64(length), nil
}

// ReadJournal decodes every action in a journal stream, validating the
// header and each record checksum.
func ReadJournal(r io.Reader) ([]*models.Action, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrCorrupt, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var actions []*models.Action
	for {
		_, payload, _, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			return actions, nil
		}
		if err != nil {
			return nil, err
		}

		action, err := decodeAction(payload)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
}
