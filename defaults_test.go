package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/docxcompat/internal/config"
	"github.com/codalotl/docxcompat/internal/corpus"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestSampleCorpusManifestIsValid(t *testing.T) {
	c, err := corpus.Load("testdata/corpus/index.json")
	require.NoError(t, err)
	require.Equal(t, c.Manifest.Count, len(c.Manifest.Files))
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := config.Load("testdata/docxcompat.yml", "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "testdata/corpus", cfg.CorpusDir)
	require.Equal(t, "docx-references", cfg.ObjectStore.Bucket)
}
