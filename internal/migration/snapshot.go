package migration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Snapshot is the transferable artifact produced during SNAPSHOTTING: a
// deterministic tar+gzip stream over the files the SnapshotSource returns
// (the home's portable subtree), with a content digest computed over the
// archive bytes. No separate work-state manifest is added to the archive. blake2b is used for the digest rather than stdlib sha256, since
// golang.org/x/crypto is already part of the dependency graph and
// blake2b is faster over large archives.
type Snapshot struct {
	Archive   []byte
	Digest    string // hex-encoded blake2b-256
	SizeBytes int64
}

// SnapshotSource supplies the portable files to archive. internal/workspace
// implements this over the real home directory layout; tests substitute an
// in-memory map.
type SnapshotSource interface {
	Files(ctx context.Context) (map[string][]byte, error)
}

// BuildSnapshot walks source's files in deterministic (sorted path) order
// so that identical file sets always produce byte-identical archives and
// digests.
func BuildSnapshot(ctx context.Context, source SnapshotSource) (Snapshot, error) {
	files, err := source.Files(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, p := range paths {
		content := files[p]
		hdr := &tar.Header{Name: p, Size: int64(len(content)), Mode: 0600}
		if err := tw.WriteHeader(hdr); err != nil {
			return Snapshot{}, err
		}
		if _, err := tw.Write(content); err != nil {
			return Snapshot{}, err
		}
	}
	if err := tw.Close(); err != nil {
		return Snapshot{}, err
	}
	if err := gz.Close(); err != nil {
		return Snapshot{}, err
	}

	archive := buf.Bytes()
	digest := blake2b.Sum256(archive)
	return Snapshot{
		Archive:   archive,
		Digest:    hex.EncodeToString(digest[:]),
		SizeBytes: int64(len(archive)),
	}, nil
}

// VerifyDigest recomputes the blake2b-256 digest over archive and compares
// it to expectedHex (§4.6 VERIFYING: "target recomputes the digest").
func VerifyDigest(archive []byte, expectedHex string) bool {
	digest := blake2b.Sum256(archive)
	return hex.EncodeToString(digest[:]) == expectedHex
}
