// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package repo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exdb/repoload/logger"
)

func TestIDListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, WriteIDList(path, []string{"2XYZ", "1ABC", "3DEF"}))

	ids, err := ReadIDList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1ABC", "2XYZ", "3DEF"}, ids, "lists are written sorted")
}

func TestReadIDListSkipsBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("1ABC\n\n  2XYZ  \n"), 0644))
	ids, err := ReadIDList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1ABC", "2XYZ"}, ids)
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	auxDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1ABC.yaml"), []byte(`
id: 1ABC
categories:
  entry:
    - id: 1ABC
      title: Example
  entity:
    - id: "1"
    - id: "2"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2XYZ.yaml"), []byte(`
categories:
  entry:
    - id: 2XYZ
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(auxDir, "1ABC-validation.yaml"), []byte(`
id: 1ABC
categories:
  validation_summary:
    - score: "0.93"
`), 0644))

	p := NewFileProvider(dir)
	p.AuxDir = auxDir
	ctx := context.Background()

	ids, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1ABC", "2XYZ"}, ids)

	rec, err := p.Fetch(ctx, "1ABC")
	require.NoError(t, err)
	assert.Equal(t, "1ABC", rec.ID)
	assert.Len(t, rec.Categories["entity"], 2)

	// ID falls back to the file name when the document omits it
	rec, err = p.Fetch(ctx, "2XYZ")
	require.NoError(t, err)
	assert.Equal(t, "2XYZ", rec.ID)

	aux, err := p.FetchAux(ctx, "1ABC")
	require.NoError(t, err)
	require.Len(t, aux, 1)
	assert.Equal(t, "0.93", aux[0].Categories["validation_summary"][0]["score"])

	aux, err = p.FetchAux(ctx, "2XYZ")
	require.NoError(t, err)
	assert.Empty(t, aux)

	_, err = p.Fetch(ctx, "MISSING")
	assert.Error(t, err)
}

func TestManifestFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# holdings 2026-08-29\n1ABC\n2XYZ\n\n3DEF\n"))
	}))
	defer srv.Close()

	feed := NewManifestFeed(srv.URL, logger.NewLogfLogger(t))
	ids, err := feed.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1ABC", "2XYZ", "3DEF"}, ids)
}

func TestManifestFeedBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	feed := NewManifestFeed(srv.URL, nil)
	feed.client.RetryMax = 0
	_, err := feed.IDs(context.Background())
	assert.Error(t, err)
}
