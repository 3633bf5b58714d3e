package broker

import (
	"bytes"
	"errors"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type payload struct {
	BatchID string   `json:"batch_id"`
	Count   int      `json:"count"`
	Tags    []string `json:"tags,omitempty"`
}

var sample = payload{BatchID: "batch-1", Count: 3, Tags: []string{"a", "b"}}

func TestEncodeDecodeJSON(t *testing.T) {
	body, err := Encode(sample, ContentTypeJSON)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Contains(body, []byte(`"batch_id":"batch-1"`)) {
		t.Fatalf("json does not use the json tags: %s", body)
	}

	var got payload
	if err := Decode(Message{Body: body}, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BatchID != sample.BatchID || got.Count != sample.Count {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestEncodeDecodeMsgpack(t *testing.T) {
	body, err := Encode(sample, ContentTypeMsgpack)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Contains(body, []byte("batch_id")) {
		t.Fatal("msgpack does not honor the json tags")
	}

	var got payload
	msg := Message{Body: body, ContentType: ContentTypeMsgpack}
	if err := Decode(msg, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BatchID != sample.BatchID || len(got.Tags) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	body := []byte(`{"batch_id":"batch-2","count":1,"surprise":{"deep":true}}`)
	var got payload
	if err := Decode(Message{Body: body}, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BatchID != "batch-2" {
		t.Fatalf("decode mismatch: %+v", got)
	}
}

func gzipBody(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func zstdBody(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, nil)
}

func TestDecodeSniffsCompression(t *testing.T) {
	plain, err := Encode(sample, ContentTypeJSON)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for name, body := range map[string][]byte{
		"gzip": gzipBody(t, plain),
		"zstd": zstdBody(t, plain),
	} {
		var got payload
		// No encoding declared; the magic bytes decide.
		if err := Decode(Message{Body: body}, &got); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if got.BatchID != sample.BatchID {
			t.Fatalf("%s: roundtrip mismatch: %+v", name, got)
		}
	}
}

func TestDecodeDeclaredEncodings(t *testing.T) {
	plain, err := Encode(sample, ContentTypeJSON)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var brBuf bytes.Buffer
	bw := brotli.NewWriter(&brBuf)
	if _, err := bw.Write(plain); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}

	for encoding, body := range map[string][]byte{
		"gzip": gzipBody(t, plain),
		"zstd": zstdBody(t, plain),
		"br":   brBuf.Bytes(),
	} {
		var got payload
		if err := Decode(Message{Body: body, ContentEncoding: encoding}, &got); err != nil {
			t.Fatalf("%s: decode: %v", encoding, err)
		}
		if got.BatchID != sample.BatchID {
			t.Fatalf("%s: roundtrip mismatch: %+v", encoding, got)
		}
	}
}

func TestDecodeUnsupportedEncoding(t *testing.T) {
	var got payload
	err := Decode(Message{Body: []byte("{}"), ContentEncoding: "lzma"}, &got)
	if !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("want ErrUnsupportedEncoding, got %v", err)
	}
}

func TestDecodeRejectsOversizedBody(t *testing.T) {
	// A tiny gzip body that inflates past the cap.
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	chunk := make([]byte, 1<<20)
	for written := 0; written <= MaxDecodedBytes; written += len(chunk) {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	var got payload
	err := Decode(Message{Body: buf.Bytes(), ContentEncoding: "gzip"}, &got)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("want ErrBodyTooLarge, got %v", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	var got payload
	if err := Decode(Message{Body: []byte("{nope")}, &got); err == nil {
		t.Fatal("want decode error")
	}
}
