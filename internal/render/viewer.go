package render

import (
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

const viewerPath = "/web-apps/apps/documenteditor/main/index.html"

// ViewerURL builds the document server's read-only viewer URL for one corpus file.
// fileURL is where the server fetches the document from; it is escaped once more as a
// query value.
func ViewerURL(serverURL, fileURL, file, key, lang string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(serverURL, "/"))
	b.WriteString(viewerPath)
	b.WriteString("?formsDataUrl=")
	b.WriteString("&fileType=" + FileType(file))
	b.WriteString("&documentType=word")
	b.WriteString("&key=" + escapeComponent(key))
	b.WriteString("&url=" + escapeComponent(fileURL))
	b.WriteString("&mode=view")
	b.WriteString("&lang=" + escapeComponent(lang))
	return b.String()
}

// FileType is the lower-cased extension without its dot, e.g. "docx".
func FileType(file string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(file)), ".")
}

// DocumentKey returns a cache key that is unique per navigation, so the server never serves a
// previously converted copy.
func DocumentKey(file string) string {
	return file + uuid.NewString()
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
