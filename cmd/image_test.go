package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casevm/casevm/machine/device"
)

func TestNewImage_ThenInspect(t *testing.T) {
	// GIVEN a Lua source file
	dir := t.TempDir()
	src := writeFile(t, dir, "boot.lua", "computer.beep()\n")

	// WHEN an image is created and saved
	img, err := newImage(src, "disk-1", "Boot", true)
	require.NoError(t, err)
	out := filepath.Join(dir, "boot.toml")
	require.NoError(t, img.Save(out))

	// THEN inspecting it verifies the checksum and shows the contents
	var buf bytes.Buffer
	require.NoError(t, inspectImage(&buf, out))
	assert.Contains(t, buf.String(), "Label    : Boot")
	assert.Contains(t, buf.String(), "Read-only: true")
	assert.Contains(t, buf.String(), "Checksum : "+img.Checksum)
}

func TestNewImage_Errors(t *testing.T) {
	_, err := newImage("", "", "", false)
	assert.Error(t, err, "code path is required")

	_, err = newImage(filepath.Join(t.TempDir(), "missing.lua"), "", "", false)
	assert.Error(t, err)
}

func TestInspectImage_TamperedChecksum(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.toml", "code = 'return'\nchecksum = '0000000000000000'\n")

	err := inspectImage(&bytes.Buffer{}, path)

	assert.Error(t, err)
}

func TestSampleImage_MatchesSource(t *testing.T) {
	img, err := device.LoadImage("../configs/bios.toml")
	require.NoError(t, err)
	require.NoError(t, img.Validate())
	assert.Contains(t, img.Code, `component.getPrimary("gpu")`)
}
