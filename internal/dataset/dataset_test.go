package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zebrago/internal/record"
	"github.com/born-ml/zebrago/internal/tfrecord"
)

// writeShard writes n samples whose next label runs from start to start+n-1.
func writeShard(t *testing.T, path string, start, n int) {
	t.Helper()
	w, err := tfrecord.Create(path, tfrecord.Zlib)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		s := record.NewSample()
		s.Next = int32(start + i)
		s.Outcome = float32(i % 2)
		s.Note = fmt.Sprintf("g%d", start+i)
		s.Set(0, 0, 0, float32(start+i))
		require.NoError(t, w.Write(record.Encode(s)))
	}
	require.NoError(t, w.Close())
}

func shards(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "train-0000.rio"), 0, 30)
	writeShard(t, filepath.Join(dir, "train-0001.rio"), 30, 25)
	files, err := Glob(filepath.Join(dir, "train-*.rio"))
	require.NoError(t, err)
	return dir, files
}

func collect(t *testing.T, p *Pipeline) ([]*Batch, error) {
	t.Helper()
	var out []*Batch
	for {
		b, err := p.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

func labels(batches []*Batch) []int {
	var out []int
	for _, b := range batches {
		for _, n := range b.Next {
			out = append(out, int(n))
		}
	}
	return out
}

func TestPipelineSinglePass(t *testing.T) {
	_, files := shards(t)
	opts := DefaultOptions()
	opts.BatchSize = 8
	opts.ShuffleBuffer = 16
	opts.Repeat = false

	p, err := Open(context.Background(), files, opts)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	batches, err := collect(t, p)
	require.NoError(t, err)

	// 55 samples: six full batches and one of 7.
	require.Len(t, batches, 7)
	for _, b := range batches[:6] {
		assert.Equal(t, 8, b.Size)
		assert.Len(t, b.Features, 8*record.SampleSize)
	}
	assert.Equal(t, 7, batches[6].Size)

	got := labels(batches)
	sort.Ints(got)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestPipelineBatchLayout(t *testing.T) {
	_, files := shards(t)
	opts := DefaultOptions()
	opts.BatchSize = 4
	opts.ShuffleBuffer = 0
	opts.Repeat = false

	p, err := Open(context.Background(), files, opts)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	b, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2, 3}, b.Next)
	assert.Equal(t, []float32{0, 1, 0, 1}, b.Outcome)
	assert.Equal(t, []string{"g0", "g1", "g2", "g3"}, b.Notes)
	for i := 0; i < 4; i++ {
		assert.Equal(t, float32(i), b.Features[i*record.SampleSize])
	}
}

func TestPipelineShuffleDeterministic(t *testing.T) {
	_, files := shards(t)
	opts := DefaultOptions()
	opts.BatchSize = 5
	opts.ShuffleBuffer = 20
	opts.Repeat = false
	opts.Seed = 99

	run := func() []int {
		p, err := Open(context.Background(), files, opts)
		require.NoError(t, err)
		defer func() { _ = p.Close() }()
		batches, err := collect(t, p)
		require.NoError(t, err)
		return labels(batches)
	}

	first := run()
	assert.Equal(t, first, run())

	inOrder := make([]int, len(first))
	for i := range inOrder {
		inOrder[i] = i
	}
	assert.NotEqual(t, inOrder, first)
}

func TestPipelineRepeat(t *testing.T) {
	_, files := shards(t)
	opts := DefaultOptions()
	opts.BatchSize = 16
	opts.ShuffleBuffer = 8
	opts.Workers = 3

	p, err := Open(context.Background(), files, opts)
	require.NoError(t, err)

	// Ten batches need more than three passes over 55 samples.
	for i := 0; i < 10; i++ {
		b, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, 16, b.Size)
	}
	require.NoError(t, p.Close())

	_, err = p.Next()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipelineCorruptRecord(t *testing.T) {
	dir, _ := shards(t)
	bad := filepath.Join(dir, "train-0002.rio")
	w, err := tfrecord.Create(bad, tfrecord.Zlib)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte{0x0a, 0x05, 0x01}))
	require.NoError(t, w.Close())

	files, err := Glob(filepath.Join(dir, "*.rio"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	opts := DefaultOptions()
	opts.BatchSize = 4
	opts.Repeat = false
	p, err := Open(context.Background(), files, opts)
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = collect(t, p)
	assert.ErrorIs(t, err, record.ErrMalformed)
}

func TestPipelineEmptyRepeat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.rio")
	w, err := tfrecord.Create(path, tfrecord.Zlib)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	p, err := Open(context.Background(), []string{path}, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.Next()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPipelineCancel(t *testing.T) {
	_, files := shards(t)
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Open(ctx, files, DefaultOptions())
	require.NoError(t, err)
	cancel()

	_, err = collect(t, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, p.Close())
}

func TestGlob(t *testing.T) {
	dir, _ := shards(t)

	files, err := Glob(filepath.Join(dir, "train-0001.rio") + "," + filepath.Join(dir, "*.rio"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "train-0000.rio"),
		filepath.Join(dir, "train-0001.rio"),
	}, files)

	_, err = Glob(filepath.Join(dir, "missing-*"))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoFiles)

	opts := DefaultOptions()
	opts.BatchSize = 0
	_, err = Open(context.Background(), []string{"x"}, opts)
	assert.Error(t, err)
}

func TestReadSamples(t *testing.T) {
	dir, _ := shards(t)
	path := filepath.Join(dir, "train-0000.rio")

	all, err := ReadSamples(path, tfrecord.Zlib, 0)
	require.NoError(t, err)
	assert.Len(t, all, 30)

	some, err := ReadSamples(path, tfrecord.Zlib, 3)
	require.NoError(t, err)
	require.Len(t, some, 3)
	assert.Equal(t, int32(2), some[2].Next)

	_, err = ReadSamples(filepath.Join(dir, "nope.rio"), tfrecord.Zlib, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
