// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package objstore provides the blob-store adapter used for raw artifacts
// and hourly aggregates: prefix listing, whole-object reads, and atomic
// single-object writes with retry on transient failures.
package objstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get and Delete when the object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobRef identifies one stored object.
type BlobRef struct {
	Name string
	Size int64
}

// Store is the adapter surface the pipeline depends on. Writes are atomic
// single-object puts; a crashed write leaves the key absent, never partial.
type Store interface {
	// List returns the objects under prefix in lexicographic name order.
	List(ctx context.Context, prefix string) ([]BlobRef, error)
	// Get reads the whole object into memory.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes the object, overwriting any existing value.
	Put(ctx context.Context, name string, data []byte) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes the object.
	Delete(ctx context.Context, name string) error
}

// TrimBucketScheme strips an optional gs:// prefix from a bucket name, so
// configuration may use either form.
func TrimBucketScheme(bucket string) string {
	return strings.TrimPrefix(bucket, "gs://")
}

// SplitURI splits a gs://bucket/key URI into bucket and key.
func SplitURI(uri string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", errors.New("uri must start with gs://")
	}
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.New("uri must name a bucket and an object")
	}
	return bucket, key, nil
}
