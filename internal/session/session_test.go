package session

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanpk716/docx_mailmerge/internal/ingest"
	"github.com/allanpk716/docx_mailmerge/internal/record"
)

func dataset(names ...string) *ingest.Dataset {
	ds := &ingest.Dataset{Source: "test", Columns: []string{"name"}}
	for _, n := range names {
		ds.Rows = append(ds.Rows, record.Raw{{Key: "name", Value: n}})
	}
	return ds
}

func TestSession_Require(t *testing.T) {
	s := New()
	_, err := s.Require()
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "Load data first", err.Error())

	s.Replace(dataset())
	_, err = s.Require()
	assert.ErrorIs(t, err, ErrNoData)

	s.Replace(dataset("Ali", "Siti"))
	rows, err := s.Require()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "test", s.Dataset().Source)
}

func TestSession_RowsAreCopies(t *testing.T) {
	s := New()
	s.Replace(dataset("Ali"))

	rows := s.Rows()
	rows[0][0].Value = "changed"
	assert.Equal(t, "Ali", s.Rows()[0][0].Value)
}

func TestSession_ReplaceWholesale(t *testing.T) {
	s := New()
	s.Replace(dataset("Ali", "Siti"))
	s.Replace(dataset("Abu"))

	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Abu", rows[0][0].Value)

	s.Replace(nil)
	assert.Nil(t, s.Rows())
}

func TestSession_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Replace(dataset("Ali"))
		}()
		go func() {
			defer wg.Done()
			_ = s.Rows()
		}()
	}
	wg.Wait()
	assert.Len(t, s.Rows(), 1)
}

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", StateFileName)

	_, err := LoadState(path)
	assert.ErrorIs(t, err, ErrNoData)

	loadedAt := time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, SaveState(path, &State{Kind: KindPasted, Source: ingest.PastedSource, Pasted: "name: Ali", LoadedAt: loadedAt}))

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, KindPasted, st.Kind)
	assert.Equal(t, "name: Ali", st.Pasted)
	assert.True(t, loadedAt.Equal(st.LoadedAt))

	require.NoError(t, ClearState(path))
	require.NoError(t, ClearState(path))
	_, err = LoadState(path)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestState_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	require.NoError(t, SaveState(path, &State{Kind: "remote", Source: "x"}))
	_, err := LoadState(path)
	assert.Error(t, err)

	assert.Error(t, SaveState(path, nil))
}
