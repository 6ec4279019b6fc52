package actionlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/crc64nvme"
	"github.com/wolfeidau/charonauth/internal/models"
	"github.com/wolfeidau/charonauth/internal/util"
)

const (
	// Journal file format constants
	journalMagic   = "CHACT001"
	journalVersion = uint32(1)
	headerSize     = 16 // 8 bytes magic + 4 bytes version + 4 bytes reserved

	// length(4) + sequence(8) + timestamp(8) + crc(8)
	recordOverhead = 28
	maxRecordSize  = 64 * 1024
)

// ErrCorrupt is returned when a journal fails header or checksum validation.
var ErrCorrupt = errors.New("corrupt journal")

var le = binary.LittleEndian

func encodeHeader() []byte {
	header := make([]byte, headerSize)
	copy(header[0:8], journalMagic)
	le.PutUint32(header[8:12], journalVersion)
	return header
}

func checkHeader(header []byte) error {
	if len(header) < headerSize {
		return fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if magic := string(header[0:8]); magic != journalMagic {
		return fmt.Errorf("%w: invalid magic %q", ErrCorrupt, magic)
	}
	if version := le.Uint32(header[8:12]); version != journalVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	return nil
}

// buildRecord frames an encoded action.
//
// Record format (total: 28 + payload_len bytes):
//   - Length (4 bytes) - total record length including this field
//   - Sequence (8 bytes)
//   - Timestamp (8 bytes) - Unix milliseconds at append
//   - Payload (variable) - encoded Action
//   - CRC64 (8 bytes) - CRC64-NVME of everything between Length and CRC
func buildRecord(sequence uint64, at time.Time, payload []byte) []byte {
	total := recordOverhead + len(payload)
	buf := make([]byte, 0, total)

	buf = le.AppendUint32(buf, util.AsUint32FromInt64(int64(total)))
	buf = le.AppendUint64(buf, sequence)
	buf = le.AppendUint64(buf, uint64(at.UnixMilli())) // #nosec G115 - timestamps are positive
	buf = append(buf, payload...)

	return le.AppendUint64(buf, computeCRC64(buf[4:]))
}

func computeCRC64(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}

// parseRecord validates a record body (everything after the length field)
// and returns its sequence and payload.
func parseRecord(body []byte) (uint64, []byte, error) {
	if len(body) < recordOverhead-4 {
		return 0, nil, fmt.Errorf("%w: short record", ErrCorrupt)
	}

	stored := le.Uint64(body[len(body)-8:])
	computed := computeCRC64(body[:len(body)-8])
	if stored != computed {
		return 0, nil, fmt.Errorf("%w: CRC64 mismatch: stored=%x computed=%x", ErrCorrupt, stored, computed)
	}

	return le.Uint64(body[0:8]), body[16 : len(body)-8], nil
}

// encodeAction lays out an action as three UUIDs, two short strings and
// the creation time in Unix nanoseconds.
func encodeAction(a *models.Action) []byte {
	buf := make([]byte, 0, 48+2+len(a.Event)+len(a.SourceIP)+8)
	buf = append(buf, a.ActionID[:]...)
	buf = append(buf, a.UserID[:]...)
	buf = append(buf, a.WhomID[:]...)
	buf = appendString8(buf, a.Event)
	buf = appendString8(buf, a.SourceIP)
	return le.AppendUint64(buf, uint64(a.CreatedAt.UnixNano())) // #nosec G115 - reinterpreted on decode
}

func appendString8(dst []byte, s string) []byte {
	n := util.AsUint8(len(s))
	dst = append(dst, n)
	return append(dst, s[:n]...)
}

func decodeAction(payload []byte) (*models.Action, error) {
	var a models.Action
	off := 0

	take := func(n int) ([]byte, bool) {
		if n > len(payload)-off {
			return nil, false
		}
		b := payload[off : off+n]
		off += n
		return b, true
	}
	str := func() (string, bool) {
		n, ok := take(1)
		if !ok {
			return "", false
		}
		b, ok := take(int(n[0]))
		return string(b), ok
	}

	ids, ok := take(48)
	if !ok {
		return nil, fmt.Errorf("%w: truncated action", ErrCorrupt)
	}
	a.ActionID = uuid.UUID(ids[0:16])
	a.UserID = uuid.UUID(ids[16:32])
	a.WhomID = uuid.UUID(ids[32:48])

	if a.Event, ok = str(); !ok {
		return nil, fmt.Errorf("%w: truncated event", ErrCorrupt)
	}
	if a.SourceIP, ok = str(); !ok {
		return nil, fmt.Errorf("%w: truncated source ip", ErrCorrupt)
	}

	ts, ok := take(8)
	if !ok {
		return nil, fmt.Errorf("%w: truncated timestamp", ErrCorrupt)
	}
	a.CreatedAt = time.Unix(0, int64(le.Uint64(ts))).UTC() // #nosec G115 - written from UnixNano

	return &a, nil
}
