package ota

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func shaOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return NewPipeline(t.TempDir(), "", zap.NewNop().Sugar())
}

func manifestFor(version string, files map[string][]byte) *Manifest {
	m := &Manifest{Version: version}
	for path, data := range files {
		m.Files = append(m.Files, ManifestEntry{
			Path:   path,
			SHA256: shaOf(data),
			Size:   int64(len(data)),
		})
	}
	return m
}

func stageAll(t *testing.T, p *Pipeline, files map[string][]byte) {
	t.Helper()
	for path, data := range files {
		_, err := p.StageFile(path, bytes.NewReader(data))
		require.NoError(t, err)
	}
}

func readInstalled(t *testing.T, p *Pipeline, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.installDir, path))
	require.NoError(t, err)
	return data
}

func TestParseManifest(t *testing.T) {
	valid := fmt.Sprintf(`{"version":"1.1.0","files":[{"path":"app/core.bin","sha256":"%s","size":4}],"extra":"ignored"}`,
		shaOf([]byte("data")))

	m, err := ParseManifest([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", m.Version)
	require.Len(t, m.Files, 1)

	bad := []struct {
		name string
		json string
	}{
		{"not json", `{{`},
		{"missing version", `{"files":[{"path":"a","sha256":"` + shaOf(nil) + `","size":0}]}`},
		{"no files", `{"version":"1.0.0","files":[]}`},
		{"short sha", `{"version":"1.0.0","files":[{"path":"a","sha256":"abc123","size":1}]}`},
		{"absolute path", `{"version":"1.0.0","files":[{"path":"/etc/passwd","sha256":"` + shaOf(nil) + `","size":1}]}`},
		{"traversal path", `{"version":"1.0.0","files":[{"path":"../../boot.py","sha256":"` + shaOf(nil) + `","size":1}]}`},
		{"backslash path", `{"version":"1.0.0","files":[{"path":"a\\b","sha256":"` + shaOf(nil) + `","size":1}]}`},
		{"negative size", `{"version":"1.0.0","files":[{"path":"a","sha256":"` + shaOf(nil) + `","size":-1}]}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.json))
			assert.ErrorIs(t, err, ErrManifestInvalid)
		})
	}
}

func TestFinalizeSwapsEverythingAndWritesMarkerLast(t *testing.T) {
	p := testPipeline(t)
	files := map[string][]byte{
		"app/core.bin":  []byte("core v2"),
		"icons/sun.raw": []byte("sun v2"),
	}

	avail, err := p.Evaluate(manifestFor("2.0.0", files))
	require.NoError(t, err)
	require.NotNil(t, avail.Session)
	assert.False(t, avail.UpToDate)

	stageAll(t, p, files)
	require.NoError(t, p.VerifyAndFinalize())

	assert.Equal(t, []byte("core v2"), readInstalled(t, p, "app/core.bin"))
	assert.Equal(t, []byte("sun v2"), readInstalled(t, p, "icons/sun.raw"))
	assert.Equal(t, "2.0.0", p.InstalledVersion())
	assert.Nil(t, p.Session())

	_, err = os.Stat(p.stageDir)
	assert.True(t, os.IsNotExist(err), "stage dir should be gone after finalize")
}

func TestChecksumMismatchNamesFileAndTouchesNothing(t *testing.T) {
	p := testPipeline(t)

	installed := []byte("installed A v1")
	require.NoError(t, os.WriteFile(filepath.Join(p.installDir, "a.bin"), installed, 0o644))

	goodA := []byte("A v2")
	goodB := []byte("B v2")
	m := manifestFor("2.0.0", map[string][]byte{"a.bin": goodA, "b.bin": goodB})

	_, err := p.Evaluate(m)
	require.NoError(t, err)

	_, err = p.StageFile("a.bin", bytes.NewReader(goodA))
	require.NoError(t, err)
	corruptB := []byte("XXv2") // same size as goodB, wrong content
	_, err = p.StageFile("b.bin", bytes.NewReader(corruptB))
	require.NoError(t, err)

	err = p.VerifyAndFinalize()
	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"b.bin"}, ce.Paths)

	// Installed tree untouched: a.bin keeps v1, b.bin never appears.
	assert.Equal(t, installed, readInstalled(t, p, "a.bin"))
	_, statErr := os.Stat(filepath.Join(p.installDir, "b.bin"))
	assert.True(t, os.IsNotExist(statErr))

	assert.Equal(t, "", p.InstalledVersion())
	assert.Nil(t, p.Session(), "failed session must be discarded")
}

func TestSecondEvaluateWhileSessionActive(t *testing.T) {
	p := testPipeline(t)
	m := manifestFor("2.0.0", map[string][]byte{"a.bin": []byte("A")})

	first, err := p.Evaluate(m)
	require.NoError(t, err)
	require.NotNil(t, first.Session)

	// Same version re-attaches to the open session instead of erroring,
	// so an interrupted updater can resume.
	again, err := p.Evaluate(m)
	require.NoError(t, err)
	require.NotNil(t, again.Session)
	assert.Equal(t, first.Session.ID, again.Session.ID)

	other := manifestFor("3.0.0", map[string][]byte{"a.bin": []byte("A3")})
	_, err = p.Evaluate(other)
	assert.ErrorIs(t, err, ErrSessionBusy)

	p.Abort()
	_, err = p.Evaluate(m)
	assert.NoError(t, err, "session slot must free after abort")
}

func TestConcurrentStagingAndStatusReads(t *testing.T) {
	p := testPipeline(t)
	files := map[string][]byte{
		"a.bin": []byte("contents of A"),
		"b.bin": []byte("contents of B"),
		"c.bin": []byte("contents of C"),
		"d.bin": []byte("contents of D"),
	}

	_, err := p.Evaluate(manifestFor("2.0.0", files))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for path, data := range files {
		wg.Add(1)
		go func(path string, data []byte) {
			defer wg.Done()
			_, err := p.StageFile(path, bytes.NewReader(data))
			assert.NoError(t, err)
		}(path, data)
	}

	// Status polling reads staging progress while uploads run.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if s := p.Session(); s != nil {
				_ = s.StagedCount()
			}
		}
	}()

	wg.Wait()
	<-done
	assert.True(t, p.Session().Complete())
}

func TestEvaluateUpToDate(t *testing.T) {
	p := testPipeline(t)
	data := []byte("current")
	require.NoError(t, os.WriteFile(filepath.Join(p.installDir, "a.bin"), data, 0o644))
	require.NoError(t, p.writeMarker("1.0.0"))

	avail, err := p.Evaluate(manifestFor("1.0.0", map[string][]byte{"a.bin": data}))
	require.NoError(t, err)
	assert.True(t, avail.UpToDate)
	assert.Nil(t, avail.Session)
}

func TestStageFileChunkedAndSizeEnforced(t *testing.T) {
	p := testPipeline(t)
	data := []byte("0123456789")
	m := manifestFor("2.0.0", map[string][]byte{"a.bin": data})

	_, err := p.Evaluate(m)
	require.NoError(t, err)

	// Two chunks complete the file.
	_, err = p.StageFile("a.bin", bytes.NewReader(data[:4]))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Session().StagedCount())

	_, err = p.StageFile("a.bin", bytes.NewReader(data[4:]))
	require.NoError(t, err)
	assert.True(t, p.Session().Complete())

	// Overshoot discards the staged file.
	_, err = p.StageFile("a.bin", bytes.NewReader([]byte("extra")))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	_, statErr := os.Stat(p.stagedPath("a.bin"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = p.StageFile("not-listed.bin", bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnknownPath)
}

func TestFinalizeRefusesIncompleteSession(t *testing.T) {
	p := testPipeline(t)
	m := manifestFor("2.0.0", map[string][]byte{
		"a.bin": []byte("A"),
		"b.bin": []byte("B"),
	})

	_, err := p.Evaluate(m)
	require.NoError(t, err)
	_, err = p.StageFile("a.bin", bytes.NewReader([]byte("A")))
	require.NoError(t, err)

	err = p.VerifyAndFinalize()
	require.Error(t, err)
	assert.NotNil(t, p.Session(), "incomplete finalize keeps the session for more staging")
}

func TestRecoverAtBootResumesJournaledSwap(t *testing.T) {
	p := testPipeline(t)
	files := map[string][]byte{
		"a.bin": []byte("A v2"),
		"b.bin": []byte("B v2"),
	}
	m := manifestFor("2.0.0", files)

	_, err := p.Evaluate(m)
	require.NoError(t, err)
	stageAll(t, p, files)
	require.NoError(t, p.writeJournal(m))

	// Simulate a crash after one file was swapped.
	require.NoError(t, os.Rename(p.stagedPath("a.bin"), filepath.Join(p.installDir, "a.bin")))

	require.NoError(t, p.RecoverAtBoot())
	assert.Equal(t, []byte("A v2"), readInstalled(t, p, "a.bin"))
	assert.Equal(t, []byte("B v2"), readInstalled(t, p, "b.bin"))
	assert.Equal(t, "2.0.0", p.InstalledVersion())
}

func TestRecoverAtBootDiscardsUnjournaledStage(t *testing.T) {
	p := testPipeline(t)
	files := map[string][]byte{"a.bin": []byte("A v2")}

	_, err := p.Evaluate(manifestFor("2.0.0", files))
	require.NoError(t, err)
	stageAll(t, p, files)
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	require.NoError(t, p.RecoverAtBoot())

	_, statErr := os.Stat(p.stageDir)
	assert.True(t, os.IsNotExist(statErr), "unjournaled stage dir must be discarded")
	_, statErr = os.Stat(filepath.Join(p.installDir, "a.bin"))
	assert.True(t, os.IsNotExist(statErr), "unverified files must not be installed")
}
