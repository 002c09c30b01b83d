package registry

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Export serializes every entry, sorted by command name with a stable field
// order, producing byte-identical output for an identical entry set. The
// store's List contract supplies a consistent snapshot, so the determinism
// guarantee holds even while ingestion proceeds concurrently.
func (r *Registry) Export(ctx context.Context) ([]byte, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Export: %w", err)
	}
	return encodeEntries(entries)
}

// exportFormatVersion is bumped whenever the export layout changes.
const exportFormatVersion = 1

// exportDoc is the top-level export document. Entries are sorted by command
// name before encoding.
type exportDoc struct {
	Format  string   `cbor:"format"`
	Version int      `cbor:"version"`
	Entries []*Entry `cbor:"entries"`
}

// exportMode is CBOR core deterministic encoding: sorted map keys, shortest
// integer forms, no floating-point indeterminism. Combined with the sorted
// entry list, an identical entry set always exports to identical bytes,
// which is what makes exports content-addressable and diffable.
var exportMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	return em
}()

var importMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
	return dm
}()

// encodeEntries serializes an already-sorted entry list deterministically.
func encodeEntries(entries []*Entry) ([]byte, error) {
	doc := exportDoc{
		Format:  "tcp-registry",
		Version: exportFormatVersion,
		Entries: entries,
	}
	data, err := exportMode.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encodeEntries: %w", err)
	}
	return data, nil
}

// decodeEntries parses an export document back into entries.
func decodeEntries(data []byte) ([]*Entry, error) {
	var doc exportDoc
	if err := importMode.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decodeEntries: %w", err)
	}
	if doc.Format != "tcp-registry" {
		return nil, fmt.Errorf("decodeEntries: unexpected format %q", doc.Format)
	}
	if doc.Version != exportFormatVersion {
		return nil, fmt.Errorf("decodeEntries: unsupported export version %d", doc.Version)
	}
	return doc.Entries, nil
}
