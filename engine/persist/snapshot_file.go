package persist

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SnapshotFile stores a map as one zstd-compressed file: a JSON header line followed by a gob body.
// The header line lets tools read map metadata without decoding the instances.
type SnapshotFile struct {
	path string
}

var _ Store = &SnapshotFile{}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

func (s *SnapshotFile) Path() string {
	return s.path
}

// Save writes to a temporary file and renames it over the target, so a crash never leaves a torn map.
func (s *SnapshotFile) Save(ctx context.Context, snap MapSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := writeSnapshot(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

func writeSnapshot(path string, snap MapSnapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *SnapshotFile) Load(ctx context.Context) (MapSnapshot, error) {
	var snap MapSnapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("parse header: %w", err)
	}
	if err := checkVersion(h); err != nil {
		return snap, err
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	sortRecords(snap.Instances)
	return snap, nil
}

// ReadHeader decodes only the header line of a snapshot file.
func (s *SnapshotFile) ReadHeader() (Header, error) {
	var h Header
	f, err := os.Open(s.path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("parse header: %w", err)
	}
	return h, nil
}

func (s *SnapshotFile) Close() error {
	return nil
}
