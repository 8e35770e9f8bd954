// Package exchange moves mutation entries between repositories.
//
// Entries travel in their canonical encoding, so a bundle carries exactly
// what the receiving store compares for deduplication. Two forms exist:
// a compressed binary bundle for transport and a YAML listing for people.
package exchange

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/javanhut/ivaldi-mutations/internal/cas"
	"github.com/javanhut/ivaldi-mutations/internal/mutation"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// Bundle header constants.
var (
	bundleMagic          = []byte{'I', 'V', 'M', 'B'}
	bundleVersion uint32 = 1
)

// maxRecord bounds a single canonical entry in a bundle.
const maxRecord = 1 << 20

// ErrBadBundle is returned for malformed or corrupted bundles.
var ErrBadBundle = errors.New("bad mutation bundle")

// WriteBundle writes entries as a zstd-compressed bundle.
//
// Uncompressed layout:
//
//	"IVMB" | u32 version | u32 count
//	repeat count: uvarint len | canonical entry
//	32 byte BLAKE3 of everything above
func WriteBundle(w io.Writer, entries []mutation.Entry) error {
	var body bytes.Buffer
	body.Write(bundleMagic)
	if err := binary.Write(&body, binary.BigEndian, bundleVersion); err != nil {
		return err
	}
	if err := binary.Write(&body, binary.BigEndian, uint32(len(entries))); err != nil {
		return err
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for i := range entries {
		rec := entries[i].CanonicalBytes()
		n := binary.PutUvarint(lenBuf[:], uint64(len(rec)))
		body.Write(lenBuf[:n])
		body.Write(rec)
	}
	sum := blake3.Sum256(body.Bytes())
	body.Write(sum[:])

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := zw.Write(body.Bytes()); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// EncodeBundle returns the bundle bytes for entries.
func EncodeBundle(entries []mutation.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadBundle decodes a bundle written by WriteBundle. The checksum is
// verified before any entry is returned.
func ReadBundle(r io.Reader) ([]mutation.Entry, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrBadBundle, err)
	}
	if len(raw) < len(bundleMagic)+8+len(cas.Hash{}) {
		return nil, fmt.Errorf("%w: truncated", ErrBadBundle)
	}
	body, sum := raw[:len(raw)-32], raw[len(raw)-32:]
	if want := blake3.Sum256(body); !bytes.Equal(want[:], sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrBadBundle)
	}

	br := bytes.NewReader(body)
	magic := make([]byte, len(bundleMagic))
	if _, err := io.ReadFull(br, magic); err != nil || !bytes.Equal(magic, bundleMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrBadBundle)
	}
	var version, count uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: read version: %v", ErrBadBundle, err)
	}
	if version != bundleVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadBundle, version)
	}
	if err := binary.Read(br, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: read count: %v", ErrBadBundle, err)
	}
	if uint64(count) > uint64(br.Len()) {
		return nil, fmt.Errorf("%w: count %d exceeds data", ErrBadBundle, count)
	}

	entries := make([]mutation.Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d length: %v", ErrBadBundle, i, err)
		}
		if n > maxRecord || n > uint64(br.Len()) {
			return nil, fmt.Errorf("%w: record %d length %d", ErrBadBundle, i, n)
		}
		rec := make([]byte, n)
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadBundle, i, err)
		}
		e, err := mutation.ParseEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadBundle, i, err)
		}
		entries = append(entries, e)
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrBadBundle)
	}
	return entries, nil
}

// Collect returns the entries needed to carry the provenance of heads to
// another repository: every entry on their predecessor chains plus the
// entries of split siblings, each once, in log order.
func Collect(snap *mutation.Snapshot, heads []cas.Hash) ([]mutation.Entry, error) {
	want := make(cas.Set)
	queue := append([]cas.Hash(nil), heads...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		preds, err := snap.Predecessors(h, mutation.Unlimited)
		if err != nil {
			return nil, err
		}
		for _, p := range preds {
			e, ok := snap.LookupBySuccessor(p)
			if !ok || !want.Add(p) {
				continue
			}
			for _, sib := range e.Split {
				if !want.Has(sib) {
					queue = append(queue, sib)
				}
			}
		}
	}

	var out []mutation.Entry
	for _, e := range snap.Entries() {
		if want.Has(e.Successor) {
			out = append(out, e)
		}
	}
	return out, nil
}
