package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBuildData(t *testing.T) {
	origV, origD, origC := Version, Date, Commit
	t.Cleanup(func() { Version, Date, Commit = origV, origD, origC })

	var buf bytes.Buffer
	Version, Date, Commit = "v1.2.3", "", "abc123"
	PrintBuildData(&buf)

	assert.Equal(t, "Build version: v1.2.3\nBuild date: N/A\nBuild commit: abc123\n", buf.String())
}
