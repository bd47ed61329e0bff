package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizreg/internal/company/search"
	"bizreg/internal/importer/dump/dumptest"
	"bizreg/internal/importer/events"
	"bizreg/internal/importer/models"
	"bizreg/internal/importer/source"
	"bizreg/internal/platform/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOpener(t *testing.T) {
	o, err := Opener(config.ImportConfig{DumpURL: "https://example.test/dump.gz"}, "/tmp/dump.sql")
	require.NoError(t, err)
	assert.Equal(t, source.FileOpener{Path: "/tmp/dump.sql"}, o)

	o, err = Opener(config.ImportConfig{DumpURL: "https://example.test/dump.gz"}, "")
	require.NoError(t, err)
	assert.IsType(t, &source.HTTPOpener{}, o)

	_, err = Opener(config.ImportConfig{}, "")
	assert.Error(t, err)
}

func TestEventsWithoutBrokersLogs(t *testing.T) {
	pub := Events(context.Background(), config.KafkaConfig{}, discard())
	assert.IsType(t, &events.LogPublisher{}, pub)
}

func TestPipelineOverMemoryStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dump.sql.gz")
	require.NoError(t, os.WriteFile(path, dumptest.Standard().Gzip(), 0o600))

	st, err := OpenStores(ctx, config.DatabaseConfig{}, discard())
	require.NoError(t, err)
	require.Nil(t, st.DB)
	require.NoError(t, st.Health(ctx))
	defer st.Close()

	opener, err := Opener(config.ImportConfig{}, path)
	require.NoError(t, err)

	p, err := NewPipeline(config.ImportConfig{BatchSize: 2, Country: "SK"}, st, opener, events.NewLogPublisher(discard()), discard(), nil)
	require.NoError(t, err)

	res, err := p.Run(ctx, models.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, res.Status)
	assert.Equal(t, int64(4), res.Companies)
	p.Wait()

	engine := search.New(st.Companies)
	counts, err := engine.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts.Total)

	require.NotNil(t, st.Audit)
	require.NoError(t, st.Health(ctx))
	require.NoError(t, st.Close())
}

func TestNewPipelineRejectsMissingLayoutFile(t *testing.T) {
	st, err := OpenStores(context.Background(), config.DatabaseConfig{}, discard())
	require.NoError(t, err)

	_, err = NewPipeline(config.ImportConfig{LayoutFile: filepath.Join(t.TempDir(), "missing.yaml")},
		st, source.FileOpener{Path: "x"}, events.NewLogPublisher(discard()), discard(), nil)
	assert.Error(t, err)
}
