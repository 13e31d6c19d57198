package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type memProvider struct {
	objects   map[string][]byte
	uploads   []string
	downloads []string
	multipart bool
}

func newMem() *memProvider {
	return &memProvider{objects: map[string][]byte{}}
}

func (m *memProvider) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		sum := md5.Sum(data)
		etag := hex.EncodeToString(sum[:])
		if m.multipart {
			etag += "-2"
		}
		out = append(out, ObjectInfo{Key: key, Size: int64(len(data)), ETag: etag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memProvider) Upload(_ context.Context, key, localPath string) (ObjectInfo, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.objects[key] = data
	m.uploads = append(m.uploads, key)
	return ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memProvider) Download(_ context.Context, key, localPath string) (ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, errors.New("not found")
	}
	m.downloads = append(m.downloads, key)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: int64(len(data))}, os.WriteFile(localPath, data, 0o644)
}

func (m *memProvider) Close() error { return nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a/b", ResolveKey("a", "b"))
	require.Equal(t, "a/b", ResolveKey("/a/", "/b"))
	require.Equal(t, "b", ResolveKey("", "b"))
	require.Equal(t, "a", ResolveKey("a", ""))
	require.Equal(t, "reference/x.png", relativeKey("team/docx", "team/docx/reference/x.png"))
	require.Equal(t, "reference/x.png", relativeKey("", "reference/x.png"))
}

func TestPushReferences(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "same-reference.png"), "same")
	writeFile(t, filepath.Join(dir, "new-reference.png"), "new")
	writeFile(t, filepath.Join(dir, "changed-reference.png"), "local")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".tmp-reference.png"), "ignored")

	m := newMem()
	m.objects["reference/same-reference.png"] = []byte("same")
	m.objects["reference/changed-reference.png"] = []byte("remote")

	sum, err := PushReferences(context.Background(), m, dir, false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Transferred)
	require.Equal(t, 1, sum.Unchanged)
	require.Equal(t, []string{"changed-reference.png"}, sum.Conflicts)
	require.Equal(t, []string{"reference/new-reference.png"}, m.uploads)
	require.Equal(t, "remote", string(m.objects["reference/changed-reference.png"]))

	sum, err = PushReferences(context.Background(), m, dir, true, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Transferred)
	require.Empty(t, sum.Conflicts)
	require.Equal(t, "local", string(m.objects["reference/changed-reference.png"]))
}

func TestPullReferences(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "kept-reference.png"), "mine")

	m := newMem()
	m.objects["reference/kept-reference.png"] = []byte("theirs")
	m.objects["reference/tables/grid-reference.png"] = []byte("grid")
	m.objects["reference/readme.md"] = []byte("skip me")

	sum, err := PullReferences(context.Background(), m, dir, false, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Transferred)
	require.Equal(t, []string{"kept-reference.png"}, sum.Conflicts)

	got, err := os.ReadFile(filepath.Join(dir, "tables", "grid-reference.png"))
	require.NoError(t, err)
	require.Equal(t, "grid", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "kept-reference.png"))
	require.NoError(t, err)
	require.Equal(t, "mine", string(got))
	require.NoFileExists(t, filepath.Join(dir, "readme.md"))

	sum, err = PullReferences(context.Background(), m, dir, true, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Transferred)
	require.Equal(t, 1, sum.Unchanged)
	got, err = os.ReadFile(filepath.Join(dir, "kept-reference.png"))
	require.NoError(t, err)
	require.Equal(t, "theirs", string(got))
}

func TestPullRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	m := newMem()
	m.objects["reference/../../evil-reference.png"] = []byte("x")
	_, err := PullReferences(context.Background(), m, t.TempDir(), false, nil)
	require.ErrorContains(t, err, "escapes")
}

func TestSameContentWithMultipartETag(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a-reference.png")
	writeFile(t, path, "abcd")
	same, err := sameContent(path, ObjectInfo{Size: 4, ETag: "deadbeef-3"})
	require.NoError(t, err)
	require.True(t, same)
	same, err = sameContent(path, ObjectInfo{Size: 4, ETag: "deadbeef"})
	require.NoError(t, err)
	require.False(t, same)
}

func TestPublishResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "results.json"), "{}")
	writeFile(t, filepath.Join(dir, "a-actual.png"), "png")
	writeFile(t, filepath.Join(dir, ".results.json.tmp-1"), "partial")

	m := newMem()
	n, err := PublishResults(context.Background(), m, dir, "run-7", nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []string{"results/run-7/results.json", "results/run-7/a-actual.png"}, m.uploads)

	_, err = PublishResults(context.Background(), m, dir, " ", nil)
	require.Error(t, err)
}

func TestNewProviderRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(context.Background(), Config{})
	require.ErrorIs(t, err, ErrNoBucket)
}
