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

package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	// Bucket is the bucket name, with or without a gs:// prefix.
	Bucket string
	// MaxElapsed caps the total retry budget for one mutating operation.
	// Zero means the default of two minutes.
	MaxElapsed time.Duration
}

// GCSStore is the Google Cloud Storage implementation of Store. Mutating
// operations retry transient failures (rate limiting, service unavailable,
// and 403s seen while fresh IAM grants propagate) with truncated
// exponential backoff; terminal failures surface to the caller.
type GCSStore struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	maxElapsed time.Duration
	logger     *slog.Logger
}

// NewGCSStore opens a store bound to one bucket. The CLI commands open one
// store per bucket and share it across all workers of a pool; workers do
// not get a client of their own.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 2 * time.Minute
	}
	return &GCSStore{
		client:     client,
		bucket:     client.Bucket(TrimBucketScheme(cfg.Bucket)),
		maxElapsed: maxElapsed,
		logger:     logger,
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) List(ctx context.Context, prefix string) ([]BlobRef, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var blobs []BlobRef
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		blobs = append(blobs, BlobRef{Name: attrs.Name, Size: attrs.Size})
	}
	return blobs, nil
}

func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	op := func() error {
		w := s.bucket.Object(name).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return classify(err)
		}
		return classify(w.Close())
	}
	if err := s.retry(ctx, name, op); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.bucket.Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	op := func() error {
		err := s.bucket.Object(name).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return backoff.Permanent(ErrNotFound)
		}
		return classify(err)
	}
	if err := s.retry(ctx, name, op); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// retry runs op under truncated exponential backoff, logging each retry.
func (s *GCSStore) retry(ctx context.Context, name string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = s.maxElapsed
	notify := func(err error, next time.Duration) {
		s.logger.Warn("objstore.retry", "object", name, "next_in", next, "err", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

// classify wraps terminal errors in backoff.Permanent so only transient
// classes are retried. GCS signals transience with 429 and 503; 403 is
// retried too because fresh bucket grants can take a short while to
// propagate and read as forbidden in the meantime.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden:
			return err
		}
		return backoff.Permanent(err)
	}
	// Non-HTTP errors (connection resets, timeouts) are worth retrying.
	return err
}
