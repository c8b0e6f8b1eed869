package biz

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/tessera-ai/tessera/pkg/errors"
)

// Media types understood by the loader. Anything else goes through the
// generic plain-text fallback.
const (
	MediaPDF      = "application/pdf"
	MediaDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaMarkdown = "text/markdown"
	MediaHTML     = "text/html"
	MediaPlain    = "text/plain"
)

// maxFetchBytes caps URL downloads.
const maxFetchBytes = 32 << 20

// browserUserAgent is sent on URL fetches; several documentation hosts
// reject requests with default Go client agents.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Loader extracts plain text from stored documents and URLs.
type Loader struct {
	httpClient *http.Client
}

// NewLoader creates a document loader.
func NewLoader() *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Load extracts text from raw document bytes according to the media type.
// Unsupported types fall back to generic text extraction rather than failing.
func (l *Loader) Load(data []byte, mediaType string) (string, error) {
	switch normalizeMediaType(mediaType) {
	case MediaPDF:
		return extractPDF(data)
	case MediaDocx:
		return extractDocx(data)
	case MediaMarkdown:
		return extractMarkdown(data), nil
	case MediaHTML:
		return extractHTML(data), nil
	case MediaPlain:
		return string(data), nil
	default:
		return extractGeneric(data), nil
	}
}

// LoadURL fetches a URL and extracts its text. It returns the text and the
// media type reported by the server.
func (l *Loader) LoadURL(ctx context.Context, url string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", errors.ErrInvalidRequest.WithMessage("invalid URL %q", url).WithCause(err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", url, err)
	}

	mediaType := resp.Header.Get("Content-Type")
	text, err := l.Load(data, mediaType)
	if err != nil {
		return "", "", err
	}
	return text, normalizeMediaType(mediaType), nil
}

// normalizeMediaType maps content-type headers and file suffix aliases onto
// the closed media type set.
func normalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case mt == MediaPDF || strings.HasSuffix(mt, ".pdf") || mt == "pdf":
		return MediaPDF
	case mt == MediaDocx || strings.HasSuffix(mt, ".docx") || mt == "docx":
		return MediaDocx
	case mt == MediaMarkdown || strings.HasSuffix(mt, ".md") || mt == "markdown" || mt == "md":
		return MediaMarkdown
	case mt == MediaHTML || mt == "application/xhtml+xml" || strings.HasSuffix(mt, ".html") || mt == "html":
		return MediaHTML
	case mt == MediaPlain || strings.HasSuffix(mt, ".txt") || mt == "txt":
		return MediaPlain
	default:
		return mt
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.ErrUnsupportedMedia.WithMessage("failed to open PDF").WithCause(err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages, the rest of the document still indexes.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDocx pulls text runs out of the OOXML main document part.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.ErrUnsupportedMedia.WithMessage("failed to open docx archive").WithCause(err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				return "", errors.ErrUnsupportedMedia.WithMessage("failed to read docx document part").WithCause(err)
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return "", errors.ErrUnsupportedMedia.WithMessage("failed to read docx document part").WithCause(err)
			}
			break
		}
	}
	if docXML == nil {
		return "", errors.ErrUnsupportedMedia.WithMessage("docx archive has no document part")
	}

	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	var sb strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.ErrUnsupportedMedia.WithMessage("malformed docx document part").WithCause(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

var (
	mdCodeFence = regexp.MustCompile("(?m)^```.*$")
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdEmphasis  = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
)

// extractMarkdown strips markdown syntax, keeping the readable text.
func extractMarkdown(data []byte) string {
	text := string(data)
	text = mdCodeFence.ReplaceAllString(text, "")
	text = mdImage.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdEmphasis.ReplaceAllString(text, "$1")
	return text
}

// extractHTML strips tags and collapses whitespace. Script and style bodies
// are dropped entirely.
func extractHTML(data []byte) string {
	text := string(data)
	var sb strings.Builder
	inTag := false
	skipUntil := ""

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case skipUntil != "":
			if c == '<' && hasFoldPrefix(text[i:], skipUntil) {
				i += len(skipUntil)
				skipUntil = ""
				inTag = true
				continue
			}
			i++
		case c == '<':
			rest := text[i:]
			if hasFoldPrefix(rest, "<script") {
				skipUntil = "</script"
			} else if hasFoldPrefix(rest, "<style") {
				skipUntil = "</style"
			} else {
				inTag = true
			}
			i++
		case c == '>':
			if inTag {
				inTag = false
				sb.WriteByte(' ')
			} else {
				sb.WriteByte(c)
			}
			i++
		default:
			if !inTag {
				sb.WriteByte(c)
			}
			i++
		}
	}

	return strings.Join(strings.Fields(html.UnescapeString(sb.String())), " ")
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// extractGeneric treats unknown formats as text, dropping non-printable runes.
func extractGeneric(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' || r >= 0x20 {
			return r
		}
		return -1
	}, string(data))
}
