package biz

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMediaType(t *testing.T) {
	cases := map[string]string{
		"application/pdf":          MediaPDF,
		"PDF":                      MediaPDF,
		"report.pdf":               MediaPDF,
		"text/markdown":            MediaMarkdown,
		"readme.md":                MediaMarkdown,
		"md":                       MediaMarkdown,
		"text/html":                MediaHTML,
		"text/html; charset=utf-8": MediaHTML,
		"application/xhtml+xml":    MediaHTML,
		"index.html":               MediaHTML,
		"text/plain":               MediaPlain,
		"notes.txt":                MediaPlain,
		"docx":                     MediaDocx,
		"application/octet-stream": "application/octet-stream",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeMediaType(input), "input %q", input)
	}
	assert.Equal(t, MediaDocx, normalizeMediaType(MediaDocx))
}

func TestLoader_Load_Markdown(t *testing.T) {
	l := NewLoader()

	md := "# Title\n\nSome **bold** text with a [link](https://example.com) and ![img](pic.png).\n\n```\ncode block fence\n```\n"
	text, err := l.Load([]byte(md), "text/markdown")
	require.NoError(t, err)

	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "bold")
	assert.Contains(t, text, "link")
	assert.NotContains(t, text, "](")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "```")
	assert.NotContains(t, text, "pic.png")
}

func TestLoader_Load_HTML(t *testing.T) {
	l := NewLoader()

	page := `<html><head><style>body { color: red; }</style>
<script>var tracked = true;</script></head>
<body><h1>Heading</h1><p>First &amp; second paragraph.</p></body></html>`
	text, err := l.Load([]byte(page), "text/html; charset=utf-8")
	require.NoError(t, err)

	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "First & second paragraph.")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "tracked")
	assert.NotContains(t, text, "<p>")
}

func TestLoader_Load_Docx(t *testing.T) {
	l := NewLoader()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	text, err := l.Load(buf.Bytes(), MediaDocx)
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
}

func TestLoader_Load_DocxInvalidArchive(t *testing.T) {
	l := NewLoader()

	_, err := l.Load([]byte("not a zip"), MediaDocx)
	assert.Error(t, err)
}

func TestLoader_Load_PlainAndGenericFallback(t *testing.T) {
	l := NewLoader()

	text, err := l.Load([]byte("plain text content"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "plain text content", text)

	// Unknown types keep printable text and drop control bytes.
	text, err = l.Load([]byte("usable\x00text\x01here"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "usabletexthere", text)
}

func TestLoader_LoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fetches present a browser user agent.
		assert.NotContains(t, r.Header.Get("User-Agent"), "Go-http-client")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Remote document body.</p></body></html>"))
	}))
	defer srv.Close()

	l := NewLoader()
	text, mediaType, err := l.LoadURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, MediaHTML, mediaType)
	assert.Contains(t, text, "Remote document body.")
}

func TestLoader_LoadURL_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewLoader()
	_, _, err := l.LoadURL(context.Background(), srv.URL)
	assert.Error(t, err)
}
