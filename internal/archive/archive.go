// Package archive persists robot traffic for audit and replay. Records are
// length-prefixed (topic, timestamp, body) tuples appended to seekable zstd
// files that rotate by size.
package archive

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"

	"orbit/internal/broker"
	"orbit/internal/logging"
)

// DefaultMaxBytes rotates archive files once their uncompressed payload
// passes this size.
const DefaultMaxBytes = 64 << 20

const fileExt = ".zst"

// maxRecordBytes guards Walk against corrupt length prefixes.
const maxRecordBytes = broker.MaxDecodedBytes

var errClosed = errors.New("archive closed")

// Shared decoder for Walk. Stateless in this mode and safe for concurrent use.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("init zstd decoder: %v", err))
	}
}

// Record is one archived message.
type Record struct {
	Topic string
	Stamp time.Time
	Body  []byte
}

// Config configures an Archive.
type Config struct {
	Dir      string
	MaxBytes int64
	Logger   *slog.Logger
}

// Archive appends broker messages to rotating seekable zstd files.
type Archive struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger

	mu      sync.Mutex
	enc     *zstd.Encoder
	file    *os.File
	writer  seekable.Writer
	active  string
	written int64
	closed  bool
}

// Open creates the archive directory and prepares the first file lazily.
func Open(cfg Config) (*Archive, error) {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("archive dir %s: %w", cfg.Dir, err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return &Archive{
		dir:      cfg.Dir,
		maxBytes: maxBytes,
		enc:      enc,
		logger:   logging.Default(cfg.Logger).With("component", "archive"),
	}, nil
}

// Record appends one message. Safe for concurrent use.
func (a *Archive) Record(_ context.Context, msg broker.Message) error {
	entry := encodeRecord(Record{Topic: msg.Topic, Stamp: time.Now().UTC(), Body: msg.Body})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}
	if a.writer == nil || a.written+int64(len(entry)) > a.maxBytes {
		if err := a.rotateLocked(); err != nil {
			return err
		}
	}
	if _, err := a.writer.Write(entry); err != nil {
		return fmt.Errorf("archive write: %w", err)
	}
	a.written += int64(len(entry))
	return nil
}

// rotateLocked closes the active file and starts a fresh one.
func (a *Archive) rotateLocked() error {
	if err := a.closeFileLocked(); err != nil {
		return err
	}
	name := fmt.Sprintf("archive-%d%s", time.Now().UTC().UnixNano(), fileExt)
	path := filepath.Join(a.dir, name)
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("archive file %s: %w", path, err)
	}
	w, err := seekable.NewWriter(f, a.enc)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("archive writer %s: %w", path, err)
	}
	a.file = f
	a.writer = w
	a.active = path
	a.written = 0
	a.logger.Info("rotated archive", "path", path)
	return nil
}

func (a *Archive) closeFileLocked() error {
	if a.writer == nil {
		return nil
	}
	if err := a.writer.Close(); err != nil {
		return fmt.Errorf("close archive writer: %w", err)
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}
	a.writer = nil
	a.file = nil
	a.active = ""
	return nil
}

// Close flushes and closes the active file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.closeFileLocked()
}

// Walk replays every archived record in file order, oldest file first. The
// active file is skipped: its seek table is only written on rotation or
// Close.
func (a *Archive) Walk(ctx context.Context, fn func(rec Record) error) error {
	a.mu.Lock()
	active := a.active
	a.mu.Unlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("read archive dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		path := filepath.Join(a.dir, e.Name())
		if !e.IsDir() && filepath.Ext(e.Name()) == fileExt && path != active {
			files = append(files, path)
		}
	}
	sort.Strings(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := walkFile(path, fn); err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}
	}
	return nil
}

func walkFile(path string, fn func(rec Record) error) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := seekable.NewReader(f, zstdDec)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	br := bufferedReader{r: r}
	for {
		rec, err := readRecord(&br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// encodeRecord lays a record out as uvarint-prefixed topic and body around a
// varint unix-nano timestamp.
func encodeRecord(rec Record) []byte {
	out := make([]byte, 0, 2*binary.MaxVarintLen64+binary.MaxVarintLen64+len(rec.Topic)+len(rec.Body))
	out = binary.AppendUvarint(out, uint64(len(rec.Topic)))
	out = append(out, rec.Topic...)
	out = binary.AppendVarint(out, rec.Stamp.UnixNano())
	out = binary.AppendUvarint(out, uint64(len(rec.Body)))
	out = append(out, rec.Body...)
	return out
}

func readRecord(br *bufferedReader) (Record, error) {
	topicLen, err := binary.ReadUvarint(br)
	if err != nil {
		return Record{}, err
	}
	if topicLen > maxRecordBytes {
		return Record{}, fmt.Errorf("corrupt topic length %d", topicLen)
	}
	topic := make([]byte, topicLen)
	if _, err := io.ReadFull(br, topic); err != nil {
		return Record{}, corrupt(err)
	}
	stamp, err := binary.ReadVarint(br)
	if err != nil {
		return Record{}, corrupt(err)
	}
	bodyLen, err := binary.ReadUvarint(br)
	if err != nil {
		return Record{}, corrupt(err)
	}
	if bodyLen > maxRecordBytes {
		return Record{}, fmt.Errorf("corrupt body length %d", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return Record{}, corrupt(err)
	}
	return Record{Topic: string(topic), Stamp: time.Unix(0, stamp).UTC(), Body: body}, nil
}

// corrupt upgrades a mid-record EOF so it is not mistaken for a clean end.
func corrupt(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// bufferedReader adapts an io.Reader to the byte-wise reads the varint
// decoders need.
type bufferedReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *bufferedReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *bufferedReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, err
	}
	return b.buf[0], nil
}
