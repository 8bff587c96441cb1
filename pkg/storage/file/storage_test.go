// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/storage"
)

func newStorage(t *testing.T) (storage.Backend, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s, dir
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "root")
	_, err = New(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStorage_CRUD(t *testing.T) {
	s, dir := newStorage(t)

	_, err := s.Get("sessions/abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Put("sessions/abc", []byte("record"), nil))
	got, err := s.Get("sessions/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), got)

	info, err := os.Stat(filepath.Join(dir, "sessions", "abc"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, s.Put("sessions/abc", []byte("replaced"), nil))
	got, _ = s.Get("sessions/abc")
	assert.Equal(t, []byte("replaced"), got)

	ok, err := s.Exists("sessions/abc")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete("sessions/abc"))
	assert.ErrorIs(t, s.Delete("sessions/abc"), storage.ErrNotFound)
	ok, err = s.Exists("sessions/abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorage_Permissions(t *testing.T) {
	s, dir := newStorage(t)
	require.NoError(t, s.Put("k", []byte("v"), &storage.Options{Permissions: 0640}))
	info, err := os.Stat(filepath.Join(dir, "k"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestFileStorage_ListSkipsTempFiles(t *testing.T) {
	s, dir := newStorage(t)
	require.NoError(t, s.Put("sessions/b", []byte("1"), nil))
	require.NoError(t, s.Put("sessions/a", []byte("2"), nil))
	require.NoError(t, s.Put("meta", []byte("3"), nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions", "c.123.tmp"), []byte("partial"), 0600))

	keys, err := s.List("sessions/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions/a", "sessions/b"}, keys)
}

func TestFileStorage_InvalidKeys(t *testing.T) {
	s, _ := newStorage(t)
	for _, key := range []string{"", "../escape", "a/../../b", "/abs", "a//b", "a/./b", "x.tmp", "nul\x00"} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(key, []byte("v"), nil), storage.ErrInvalidKey)
			_, err := s.Get(key)
			assert.ErrorIs(t, err, storage.ErrInvalidKey)
		})
	}
}

func TestFileStorage_Closed(t *testing.T) {
	s, _ := newStorage(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Put("k", nil, nil), storage.ErrClosed)
	_, err := s.List("")
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestFileStorage_Reopen(t *testing.T) {
	s, dir := newStorage(t)
	require.NoError(t, s.Put(storage.SessionKey("wallet/1"), []byte("persisted"), nil))
	require.NoError(t, s.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	ids, err := storage.ListSessions(reopened)
	require.NoError(t, err)
	assert.Equal(t, []string{"wallet/1"}, ids)
}
