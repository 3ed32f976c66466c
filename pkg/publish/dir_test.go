package publish

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirPublish(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run", "vpower")
	d := NewDir(dir)

	require.NoError(t, d.Publish(KeyBatteryPercent, "42.5\n"))

	b, err := os.ReadFile(filepath.Join(dir, KeyBatteryPercent))
	require.NoError(t, err)
	assert.Equal(t, "42.5\n", string(b))

	require.NoError(t, d.Publish(KeyBatteryPercent, "42\n"))
	v, ok, err := d.Read(KeyBatteryPercent)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42\n", v)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
	assert.Equal(t, KeyBatteryPercent, entries[0].Name())
}

func TestDirReadMissing(t *testing.T) {
	d := NewDir(t.TempDir())

	v, ok, err := d.Read(KeyACStatus)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestDirStaleTempFile(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)
	require.NoError(t, d.Publish(KeyACStatus, "Connected\n"))

	// A crash between write and rename leaves only the hidden file behind.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "."+KeyACStatus), []byte("Disc"), 0644))

	v, ok, err := d.Read(KeyACStatus)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Connected\n", v)

	require.NoError(t, d.Publish(KeyACStatus, "Disconnected\n"))
	v, _, err = d.Read(KeyACStatus)
	require.NoError(t, err)
	assert.Equal(t, "Disconnected\n", v)
}

func TestDirNeverPartiallyVisible(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)

	short := "1\n"
	long := strings.Repeat("9", 64*1024) + "\n"
	require.NoError(t, d.Publish(KeySecsUntilFull, short))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad []string
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			b, err := os.ReadFile(filepath.Join(dir, KeySecsUntilFull))
			if err != nil {
				bad = append(bad, err.Error())
				continue
			}
			if s := string(b); s != short && s != long {
				bad = append(bad, s[:min(len(s), 16)])
			}
		}
	}()

	for i := 0; i < 200; i++ {
		v := short
		if i%2 == 0 {
			v = long
		}
		require.NoError(t, d.Publish(KeySecsUntilFull, v))
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, bad)
}

func TestDirInvalidKey(t *testing.T) {
	d := NewDir(t.TempDir())

	for _, key := range []string{"", ".", "..", "a/b", "../escape"} {
		assert.ErrorIs(t, d.Publish(key, "x"), ErrInvalidKey, key)
	}
}

func TestDirUnwritable(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	// The state directory path is occupied by a regular file.
	d := NewDir(file)
	assert.Error(t, d.Publish(KeyACStatus, "Unknown\n"))
}
