// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ResultSchemaVersion is bumped when the stored Result layout changes.
const ResultSchemaVersion = "1.0"

// DefaultSnapshotListLimit is used when List is called with limit <= 0.
const DefaultSnapshotListLimit = 100

// BadgerDB key prefixes for result snapshots.
const (
	keyPrefixSnap      = "explorer:snap:"
	keyPrefixSnapIndex = "explorer:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"
)

// SnapshotMetadata describes a stored result.
type SnapshotMetadata struct {
	// SnapshotID is SHA256(Library:RunID:CreatedAtMilli)[:16].
	SnapshotID string `json:"snapshot_id"`

	Library string `json:"library"`

	// LibraryHash is SHA256(Library)[:16], used to group keys.
	LibraryHash string `json:"library_hash"`

	RunID string `json:"run_id"`

	// ResultHash is the structural hash of nodes and edges.
	ResultHash string `json:"result_hash"`

	Label          string `json:"label,omitempty"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	NodeCount      int    `json:"node_count"`
	EdgeCount      int    `json:"edge_count"`
	ErrorCount     int    `json:"error_count"`
	Truncated      bool   `json:"truncated"`
	SchemaVersion  string `json:"schema_version"`

	// CompressedSize is the size of the gzip payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is SHA256 of the gzip payload, checked on load.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager stores results as gzip-compressed JSON in BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a new SnapshotManager.
//
// Inputs:
//
//	db - An opened BadgerDB instance owned by the caller. Must not be nil.
//	logger - Logger for diagnostic output. Must not be nil.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save persists a result and moves the library's latest pointer to it.
//
// Key Schema:
//
//	explorer:snap:{libraryHash}:{snapshotID}:data → gzip(JSON(Result))
//	explorer:snap:{libraryHash}:{snapshotID}:meta → JSON(SnapshotMetadata)
//	explorer:snap:{libraryHash}:latest            → snapshotID
//	explorer:snap:index:{snapshotID}              → libraryHash
func (m *SnapshotManager) Save(ctx context.Context, result *Result, label string) (meta *SnapshotMetadata, err error) {
	defer func() { recordSnapshotOp(ctx, "save", err == nil) }()

	if result == nil {
		return nil, ErrNilResult
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing result: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	library := result.Summary.Library
	createdAt := time.Now().UnixMilli()
	libraryHash := LibraryHash(library)
	snapshotID := hashString(fmt.Sprintf("%s:%s:%d", library, result.RunID, createdAt))[:16]

	meta = &SnapshotMetadata{
		SnapshotID:     snapshotID,
		Library:        library,
		LibraryHash:    libraryHash,
		RunID:          result.RunID,
		ResultHash:     ResultHash(result),
		Label:          label,
		CreatedAtMilli: createdAt,
		NodeCount:      len(result.Nodes),
		EdgeCount:      len(result.Edges),
		ErrorCount:     len(result.Errors),
		Truncated:      result.Summary.Truncated,
		SchemaVersion:  ResultSchemaVersion,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey(libraryHash, snapshotID)), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey(libraryHash, snapshotID)), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey(libraryHash)), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(keyPrefixSnapIndex+snapshotID), []byte(libraryHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.String("library", library),
		slog.Int("node_count", meta.NodeCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a stored result by snapshot ID.
//
// Outputs:
//   - error: wraps ErrSnapshotNotFound for unknown ids and
//     ErrSnapshotCorrupt when the payload fails its integrity check.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (result *Result, meta *SnapshotMetadata, err error) {
	defer func() { recordSnapshotOp(ctx, "load", err == nil) }()

	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	libraryHash, err := m.libraryHashOf(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return m.loadByKeys(libraryHash, snapshotID)
}

// LoadLatest loads the most recent snapshot of a library.
func (m *SnapshotManager) LoadLatest(ctx context.Context, library string) (*Result, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	libraryHash := LibraryHash(library)
	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey(libraryHash)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("no snapshot for %s: %w", library, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", library, err)
	}
	return m.loadByKeys(libraryHash, snapshotID)
}

// List returns snapshot metadata, newest first.
//
// Inputs:
//
//	library - Optional filter. If empty, all libraries are listed.
//	limit - Maximum number of results. If <= 0, DefaultSnapshotListLimit.
func (m *SnapshotManager) List(ctx context.Context, library string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSnapshotListLimit
	}

	prefix := keyPrefixSnap
	if library != "" {
		prefix = keyPrefixSnap + LibraryHash(library) + ":"
	}

	results := make([]*SnapshotMetadata, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}

			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].SnapshotID < results[j].SnapshotID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot. The latest pointer is removed only when it
// points at the deleted snapshot.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) (err error) {
	defer func() { recordSnapshotOp(ctx, "delete", err == nil) }()

	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	libraryHash, err := m.libraryHashOf(snapshotID)
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{
			dataKey(libraryHash, snapshotID),
			metaKey(libraryHash, snapshotID),
			keyPrefixSnapIndex + snapshotID,
		} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}

		item, err := txn.Get([]byte(latestKey(libraryHash)))
		if err != nil {
			return nil
		}
		var current string
		_ = item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
		if current == snapshotID {
			if err := txn.Delete([]byte(latestKey(libraryHash))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// libraryHashOf reads the reverse index for a snapshot.
func (m *SnapshotManager) libraryHashOf(snapshotID string) (string, error) {
	var libraryHash string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixSnapIndex + snapshotID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			libraryHash = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSnapshotNotFound
	}
	return libraryHash, err
}

// loadByKeys reads, verifies and decodes one snapshot.
func (m *SnapshotManager) loadByKeys(libraryHash, snapshotID string) (*Result, *SnapshotMetadata, error) {
	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey(libraryHash, snapshotID)))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		if compressedData, err = dataItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}
		metaItem, err := txn.Get([]byte(metaKey(libraryHash, snapshotID)))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		if metaJSON, err = metaItem.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: %w", ErrSnapshotNotFound, err)
	}
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata for %s: %w", ErrSnapshotCorrupt, snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("%w: integrity check failed for %s: expected hash %s, got %s",
			ErrSnapshotCorrupt, snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decompressing %s: %w", ErrSnapshotCorrupt, snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %w", ErrSnapshotCorrupt, snapshotID, err)
	}

	var result Result
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding %s: %w", ErrSnapshotCorrupt, snapshotID, err)
	}
	return &result, &meta, nil
}

// LibraryHash returns the key-grouping hash of a library identifier.
func LibraryHash(library string) string {
	return hashString(library)[:16]
}

// ResultHash returns a deterministic hash of a result's nodes and edges.
//
// Run id, timings and errors do not contribute, so two runs over the same
// sources hash the same.
func ResultHash(r *Result) string {
	h := sha256.New()
	for _, n := range r.Nodes {
		fmt.Fprintf(h, "n|%s|%s|%s|%s|%d\n", n.ID, n.ParentID, n.Kind, n.QualifiedPath, n.Line)
		for _, p := range n.Params() {
			fmt.Fprintf(h, "p|%s|%s|%s|%t|%s\n", p.Name, p.Kind, p.Annotation, p.HasDefault, p.Default)
		}
	}
	for _, e := range r.Edges {
		fmt.Fprintf(h, "e|%s\n", e.Key())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func dataKey(libraryHash, snapshotID string) string {
	return keyPrefixSnap + libraryHash + ":" + snapshotID + keySuffixData
}

func metaKey(libraryHash, snapshotID string) string {
	return keyPrefixSnap + libraryHash + ":" + snapshotID + keySuffixMeta
}

func latestKey(libraryHash string) string {
	return keyPrefixSnap + libraryHash + keySuffixLatest
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
