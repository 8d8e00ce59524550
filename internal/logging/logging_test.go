package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	logger, err := New("znsite", logrus.InfoLevel, dir)
	require.NoError(t, err)

	logger.Info("site created")

	data, err := os.ReadFile(filepath.Join(dir, "znsite.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "site created")
}

func TestParseLevelFallsBackOnInvalidInput(t *testing.T) {
	require.Equal(t, logrus.InfoLevel, ParseLevel("", logrus.InfoLevel))
	require.Equal(t, logrus.InfoLevel, ParseLevel("not-a-level", logrus.InfoLevel))
	require.Equal(t, logrus.DebugLevel, ParseLevel("debug", logrus.InfoLevel))
}

func TestWithComponentTagsEntries(t *testing.T) {
	logger := logrus.New()
	entry := WithComponent(logger, "zntracker")
	require.Equal(t, "zntracker", entry.Data["component"])
}
