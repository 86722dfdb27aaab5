package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp runs the CLI with stdin read from a file holding input.
func testApp(t *testing.T, input string) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	inPath := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(inPath, []byte(input), 0o600))
	in, err := os.Open(inPath)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })

	var out, errOut bytes.Buffer
	return &app{
		in:     in,
		out:    &out,
		errOut: &errOut,
		env:    platformEnv(),
		exit:   func(code int) { t.Fatalf("unexpected exit %d", code) },
	}, &out, &errOut
}

func TestWipeClearVerifies(t *testing.T) {
	img := writeImage(t, 5000, 0x5A)
	a, out, errOut := testApp(t, "CONFIRM\n")

	code := a.run([]string{"wipe", "--device", img, "--mode", "clear", "--verify", "--block-size", "1KiB"})
	require.Equal(t, 0, code, errOut.String())

	raw, err := os.ReadFile(img)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5000), raw)
	assert.Contains(t, out.String(), "Result:         SUCCESS")
	assert.Contains(t, out.String(), "Verification:   passed")
	assert.Contains(t, errOut.String(), "Type CONFIRM to proceed")
}

func TestWipeSelectivePurgeSkipsCleanRegions(t *testing.T) {
	data := make([]byte, 4096)
	data[1500] = 0x01
	img := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(img, data, 0o600))
	a, out, errOut := testApp(t, "CONFIRM\n")

	code := a.run([]string{"wipe", "--device", img, "--mode", "selective-purge",
		"--verify", "--verify-skipped", "--block-size", "1KiB"})
	require.Equal(t, 0, code, errOut.String())

	assert.Contains(t, out.String(), "4 visited, 3 skipped, 1 written, 0 failed")
	raw, err := os.ReadFile(img)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 1024), raw[:1024])
	assert.NotEqual(t, make([]byte, 1024), raw[1024:2048], "dirty region ends with the pseudorandom pass")
	assert.Equal(t, make([]byte, 2048), raw[2048:])
}

func TestWipeRejectedConfirmationTouchesNothing(t *testing.T) {
	for _, input := range []string{"confirm\n", "CONFIRM \n", "", "yes\n"} {
		img := writeImage(t, 2048, 0x77)
		a, out, errOut := testApp(t, input)

		code := a.run([]string{"wipe", "--device", img, "--mode", "purge"})
		assert.Equal(t, 1, code, "input %q", input)
		assert.Contains(t, errOut.String(), "error:")
		assert.NotContains(t, out.String(), "Result:")

		raw, err := os.ReadFile(img)
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{0x77}, 2048), raw, "input %q", input)
	}
}

func TestWipeMissingDevice(t *testing.T) {
	a, _, errOut := testApp(t, "CONFIRM\n")
	code := a.run([]string{"wipe", "--device", filepath.Join(t.TempDir(), "absent")})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "hint: raw device access needs root or Administrator")
}

func TestWipeUsageErrors(t *testing.T) {
	a, _, errOut := testApp(t, "")
	assert.Equal(t, 1, a.run([]string{"wipe"}))
	assert.Contains(t, errOut.String(), "--device is required")

	a, _, _ = testApp(t, "")
	assert.Equal(t, 1, a.run([]string{"wipe", "--device", "/dev/null", "--block-size", "100"}))

	a, _, _ = testApp(t, "")
	assert.Equal(t, 1, a.run([]string{"wipe", "--device", "/dev/null", "--verify-skipped"}))
}

func TestVerifyCommand(t *testing.T) {
	img := writeImage(t, 3000, 0x00)
	a, out, errOut := testApp(t, "")
	require.Equal(t, 0, a.run([]string{"verify", "--device", img, "--block-size", "512"}), errOut.String())
	assert.Contains(t, out.String(), "Verification:   passed")

	data := make([]byte, 3000)
	data[2100] = 0x42
	require.NoError(t, os.WriteFile(img, data, 0o600))
	a, out, _ = testApp(t, "")
	assert.Equal(t, 1, a.run([]string{"verify", "--device", img, "--block-size", "512"}))
	assert.Contains(t, out.String(), "FAILED at offset 2100: observed 0x42, expected 0x00")

	img = writeImage(t, 1024, 0xFF)
	a, _, errOut = testApp(t, "")
	assert.Equal(t, 0, a.run([]string{"verify", "--device", img, "--expect", "0xFF", "--block-size", "512"}), errOut.String())
}

func TestBatchCommand(t *testing.T) {
	x := writeImage(t, 2048, 0x01)
	y := writeImage(t, 1536, 0x02)
	a, out, errOut := testApp(t, "CONFIRM\n")

	code := a.run([]string{"batch", "--job", x, "--job", y, "--mode", "clear", "--verify", "--block-size", "512"})
	require.Equal(t, 0, code, errOut.String())
	assert.Equal(t, 2, bytes.Count(out.Bytes(), []byte("Result:         SUCCESS")))

	for _, p := range []string{x, y} {
		raw, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, len(raw)), raw)
	}
}

func TestBatchRejectedConfirmation(t *testing.T) {
	x := writeImage(t, 1024, 0x01)
	a, _, _ := testApp(t, "no\n")
	assert.Equal(t, 1, a.run([]string{"batch", "--job", x}))

	raw, err := os.ReadFile(x)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x01}, 1024), raw)
}
