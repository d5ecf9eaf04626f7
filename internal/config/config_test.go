package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSocketPath, cfg.NetconfSocket)
}

func TestParseNetconfSocket(t *testing.T) {
	cfg, err := Parse(strings.NewReader("NetconfSocket /var/run/my.sock\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/run/my.sock", cfg.NetconfSocket)
}

func TestParseCommentsAndBlankLines(t *testing.T) {
	in := "# a comment\n\nNetconfSocket /tmp/n.sock\n\n# trailing\n"
	cfg, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/n.sock", cfg.NetconfSocket)
}

func TestParsePidFile(t *testing.T) {
	cfg, err := Parse(strings.NewReader("PidFile /var/run/modnetconfd.pid\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/run/modnetconfd.pid", cfg.PidFile)
}

func TestParseUnknownDirective(t *testing.T) {
	_, err := Parse(strings.NewReader("BogusDirective x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown directive")
}

func TestParseMissingValue(t *testing.T) {
	_, err := Parse(strings.NewReader("NetconfSocket\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a value")
}

func TestWritePidNoop(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.WritePid(1234))
}
