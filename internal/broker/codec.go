package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxDecodedBytes caps a message body after decompression. Robot scan data
// carries base64 images, so the limit is generous.
const MaxDecodedBytes = 64 << 20

var (
	// ErrBodyTooLarge indicates a body exceeded MaxDecodedBytes once
	// decompressed.
	ErrBodyTooLarge = errors.New("message body too large")

	// ErrUnsupportedEncoding indicates an unknown content encoding.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// zstdDec is a package-level decoder, concurrent-safe, always available.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(MaxDecodedBytes))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// Encode marshals v for the given content type. JSON is the default; msgpack
// reuses the json struct tags so both codecs agree on field names.
func Encode(v any, contentType string) ([]byte, error) {
	switch contentType {
	case ContentTypeMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("encode msgpack: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return data, nil
	}
}

// Decode decompresses and unmarshals a message body into v. The declared
// content encoding wins; without one, gzip and zstd are sniffed by their
// magic bytes (brotli has none and must be declared). Unknown body fields
// are ignored.
func Decode(msg Message, v any) error {
	body, err := decompress(msg.Body, msg.ContentEncoding)
	if err != nil {
		return err
	}
	switch msg.ContentType {
	case ContentTypeMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(body))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode msgpack: %w", err)
		}
		return nil
	default:
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	}
}

func decompress(body []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip":
		return gunzip(body)
	case "zstd":
		return unzstd(body)
	case "br", "brotli":
		return capRead(brotli.NewReader(bytes.NewReader(body)))
	case "", "identity":
	default:
		return nil, fmt.Errorf("%q: %w", encoding, ErrUnsupportedEncoding)
	}

	switch {
	case bytes.HasPrefix(body, gzipMagic):
		return gunzip(body)
	case bytes.HasPrefix(body, zstdMagic):
		return unzstd(body)
	}
	if len(body) > MaxDecodedBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

func gunzip(body []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = r.Close() }()
	return capRead(r)
}

func unzstd(body []byte) ([]byte, error) {
	out, err := zstdDec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(out) > MaxDecodedBytes {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

// capRead drains r, failing once the body exceeds MaxDecodedBytes.
func capRead(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxDecodedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecodedBytes {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}
