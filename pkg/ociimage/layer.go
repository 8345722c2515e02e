package ociimage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// Compression selects whether layers (and the outer archive) are emitted
// gzip-compressed.
type Compression struct {
	Enabled bool
	Level   int // passed to compress/gzip; meaningful only when Enabled
}

// layer is a v1.Layer backed by an already-built, in-memory uncompressed
// tar stream. It computes and caches its own digest/diffID, mirroring the
// custom compressed/uncompressed writer split the teacher's tar layer
// builder uses, just implemented against v1.Layer instead of std Write.
type layer struct {
	uncompressed []byte
	compression  Compression

	compressed []byte
	mediaType  types.MediaType
	digest     v1.Hash
	diffID     v1.Hash
}

// newLayer compresses uncompressed (if requested) and precomputes the
// digest (over the bytes actually stored in the blob) and diffID (always
// over the uncompressed bytes), matching the OCI spec's distinction
// between the two.
func newLayer(uncompressed []byte, compression Compression) (*layer, error) {
	diffIDSum := sha256.Sum256(uncompressed)
	diffID := v1.Hash{Algorithm: "sha256", Hex: hex.EncodeToString(diffIDSum[:])}

	l := &layer{uncompressed: uncompressed, compression: compression, diffID: diffID}

	if compression.Enabled {
		var buf bytes.Buffer
		// Level 0 is compress/gzip's NoCompression, not "unset" — the CLI
		// flag always carries an explicit default, so 0 here means the
		// caller asked to store the layer uncompressed.
		gw, err := gzip.NewWriterLevel(&buf, compression.Level)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if _, err := gw.Write(uncompressed); err != nil {
			return nil, fmt.Errorf("gzip-compressing layer: %w", err)
		}
		if err := gw.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
		l.compressed = buf.Bytes()
		l.mediaType = types.OCILayerGZip
	} else {
		l.compressed = uncompressed
		l.mediaType = types.OCILayer
	}

	digestSum := sha256.Sum256(l.compressed)
	l.digest = v1.Hash{Algorithm: "sha256", Hex: hex.EncodeToString(digestSum[:])}

	return l, nil
}

func (l *layer) Digest() (v1.Hash, error) { return l.digest, nil }

func (l *layer) DiffID() (v1.Hash, error) { return l.diffID, nil }

func (l *layer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *layer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}

func (l *layer) Size() (int64, error) { return int64(len(l.compressed)), nil }

func (l *layer) MediaType() (types.MediaType, error) { return l.mediaType, nil }
