package render

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestViewerURL(t *testing.T) {
	t.Parallel()

	got := ViewerURL("http://localhost:8080/", "http://127.0.0.1:9090/a%20b.docx", "a b.docx", "a b.docxK1", "en")
	want := "http://localhost:8080/web-apps/apps/documenteditor/main/index.html" +
		"?formsDataUrl=" +
		"&fileType=docx" +
		"&documentType=word" +
		"&key=a%20b.docxK1" +
		"&url=http%3A%2F%2F127.0.0.1%3A9090%2Fa%2520b.docx" +
		"&mode=view" +
		"&lang=en"
	require.Equal(t, want, got)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "http://127.0.0.1:9090/a%20b.docx", q.Get("url"))
	require.Equal(t, "view", q.Get("mode"))
	require.Equal(t, "word", q.Get("documentType"))
}

func TestFileType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "docx", FileType("tables/merged.DOCX"))
	require.Equal(t, "doc", FileType("legacy.doc"))
	require.Equal(t, "", FileType("README"))
}

func TestDocumentKeyIsUniquePerCall(t *testing.T) {
	t.Parallel()

	a := DocumentKey("x.docx")
	b := DocumentKey("x.docx")
	require.True(t, strings.HasPrefix(a, "x.docx"))
	require.NotEqual(t, a, b)
}

func TestFlagOptions(t *testing.T) {
	t.Parallel()

	require.Len(t, flagOptions([]string{"--no-sandbox", "--lang=de", "--", ""}), 2)
	require.Empty(t, flagOptions(nil))
}

func TestSleepHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleep(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, sleep(context.Background(), 0))
}

func TestLaunchRejectsEmptyViewport(t *testing.T) {
	t.Parallel()

	_, err := Launch(context.Background(), Options{Width: 0, Height: 900})
	require.ErrorContains(t, err, "invalid viewport")
}

func TestReadyExpressionChecksAllConditions(t *testing.T) {
	t.Parallel()

	for _, needle := range []string{".documenteditor", "canvas", ".asc-loadmask-body", `display === "none"`} {
		require.Contains(t, readyExpression, needle)
	}
}
