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
	"net/http"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestMemStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.Put(ctx, "a/b", []byte("hello")))

	data, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	ok, err := s.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "a/b"))

	_, err = s.Get(ctx, "a/b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a/b"), ErrNotFound)
}

func TestMemStore_ListSortedByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for _, name := range []string{"t/dt=2024-01-01/b", "t/dt=2024-01-01/a", "t/dt=2024-01-02/c", "other/x"} {
		require.NoError(t, s.Put(ctx, name, []byte("x")))
	}

	blobs, err := s.List(ctx, "t/dt=2024-01-01/")
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "t/dt=2024-01-01/a", blobs[0].Name)
	assert.Equal(t, "t/dt=2024-01-01/b", blobs[1].Name)
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, "k", []byte("abc")))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	data[0] = 'z'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestTrimBucketScheme(t *testing.T) {
	assert.Equal(t, "my-bucket", TrimBucketScheme("gs://my-bucket"))
	assert.Equal(t, "my-bucket", TrimBucketScheme("my-bucket"))
}

func TestSplitURI(t *testing.T) {
	bucket, key, err := SplitURI("gs://raw-bucket/t/dt=2024-01-01/file.json")
	require.NoError(t, err)
	assert.Equal(t, "raw-bucket", bucket)
	assert.Equal(t, "t/dt=2024-01-01/file.json", key)

	_, _, err = SplitURI("raw-bucket/file.json")
	assert.Error(t, err)
	_, _, err = SplitURI("gs://only-bucket")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	transient := &googleapi.Error{Code: http.StatusTooManyRequests}
	var permanent *backoff.PermanentError
	assert.False(t, errors.As(classify(transient), &permanent))

	propagating := &googleapi.Error{Code: http.StatusForbidden}
	assert.False(t, errors.As(classify(propagating), &permanent))

	terminal := &googleapi.Error{Code: http.StatusNotFound}
	assert.True(t, errors.As(classify(terminal), &permanent))

	// Plain network errors stay retryable.
	assert.False(t, errors.As(classify(errors.New("connection reset")), &permanent))
}
