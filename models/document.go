// Package models holds the data types that flow through the pipeline
// engine: documents, batches, phase kinds and analyzer diagnostics. It has
// no dependency on the engine or collaborator packages so it can be
// imported by module authors without pulling in scheduling machinery.
package models

import "io"

// ContentProvider lazily opens a document's content stream. A Document may
// carry no provider at all (metadata-only documents, common in the Input
// phase before any reader has run).
type ContentProvider interface {
	Open() (io.ReadCloser, error)
}

// Metadata is an ordered string-keyed mapping. Order is insertion order;
// Set on an existing key updates the value in place without moving it to
// the end, matching the "ordered mapping" invariant in the data model.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata builds an empty, ready-to-use Metadata.
func NewMetadata() Metadata {
	return Metadata{values: make(map[string]any)}
}

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (any, bool) {
	if m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set returns a copy of m with key set to value. Metadata is never mutated
// in place so a Document's metadata can be shared safely across modules.
func (m Metadata) Set(key string, value any) Metadata {
	out := m.clone()
	if _, exists := out.values[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

// Keys returns the metadata keys in insertion order.
func (m Metadata) Keys() []string {
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len reports the number of entries.
func (m Metadata) Len() int {
	return len(m.keys)
}

func (m Metadata) clone() Metadata {
	out := Metadata{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]any, len(m.values)),
	}
	copy(out.keys, m.keys)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}

// Document is an immutable value produced by one module and consumed by
// the next. It has identity by reference for caching purposes only; two
// documents with identical fields are still distinct values. Nothing in
// this package mutates a Document after construction; transformations
// always produce a new one via With*.
type Document struct {
	SourcePath    string
	HasSourcePath bool
	DestPath      string
	HasDestPath   bool
	Metadata      Metadata
	Content       ContentProvider
}

// NewDocument creates a Document with empty metadata and no paths or
// content provider set.
func NewDocument() Document {
	return Document{Metadata: NewMetadata()}
}

// WithSourcePath returns a copy of the document with its source path set.
func (d Document) WithSourcePath(path string) Document {
	d.SourcePath = path
	d.HasSourcePath = true
	return d
}

// WithDestPath returns a copy of the document with its destination path set.
func (d Document) WithDestPath(path string) Document {
	d.DestPath = path
	d.HasDestPath = true
	return d
}

// WithMetadata returns a copy of the document with key set in its metadata.
func (d Document) WithMetadata(key string, value any) Document {
	d.Metadata = d.Metadata.Set(key, value)
	return d
}

// WithContent returns a copy of the document with its content provider set.
func (d Document) WithContent(provider ContentProvider) Document {
	d.Content = provider
	return d
}

// Batch is an immutable ordered sequence of documents. A nil Batch and an
// empty, non-nil Batch are both treated as "no documents" by every
// operation in this package, so callers never need to special-case either.
type Batch []Document

// NewBatch builds a batch from the given documents, preserving order.
func NewBatch(docs ...Document) Batch {
	if len(docs) == 0 {
		return Batch{}
	}
	out := make(Batch, len(docs))
	copy(out, docs)
	return out
}

// EmptyBatch is the distinguished empty batch.
var EmptyBatch = Batch{}

// Concat concatenates batches in order, preserving the ordering within and
// across each input batch.
func Concat(batches ...Batch) Batch {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return EmptyBatch
	}
	out := make(Batch, 0, total)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// NormalizeBatch treats a nil batch (what a module returns when it yields
// "nothing") as the empty batch, per the module contract.
func NormalizeBatch(b Batch) Batch {
	if b == nil {
		return EmptyBatch
	}
	return b
}
