package wire

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// extensionMediaTypes maps known file extensions to IANA media types.
var extensionMediaTypes = map[string]string{
	"png":      "image/png",
	"jpg":      "image/jpeg",
	"jpeg":     "image/jpeg",
	"gif":      "image/gif",
	"webp":     "image/webp",
	"svg":      "image/svg+xml",
	"bmp":      "image/bmp",
	"ico":      "image/x-icon",
	"tif":      "image/tiff",
	"tiff":     "image/tiff",
	"pdf":      "application/pdf",
	"txt":      "text/plain",
	"html":     "text/html",
	"htm":      "text/html",
	"md":       "text/markdown",
	"markdown": "text/markdown",
	"json":     "application/json",
}

const defaultMediaType = "application/octet-stream"

// InferMediaTypeFromURL strips any query string/fragment, takes the last
// extension, and maps it to an IANA media type, defaulting to
// application/octet-stream when unrecognized.
func InferMediaTypeFromURL(url string) string {
	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	i := strings.LastIndex(u, ".")
	if i < 0 || i == len(u)-1 {
		return defaultMediaType
	}
	ext := strings.ToLower(u[i+1:])
	if mt, ok := extensionMediaTypes[ext]; ok {
		return mt
	}
	return defaultMediaType
}

// ExtractImageFromDataURI decodes a data: URI into its encoding, media
// type, and payload. Returns ok=false when the string is not well-formed.
func ExtractImageFromDataURI(url string) (source ImageSource, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return ImageSource{}, false
	}
	rest := strings.TrimPrefix(url, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return ImageSource{}, false
	}
	header, data := rest[:commaIdx], rest[commaIdx+1:]

	mediaType := header
	encoding := "base64"
	if semi := strings.Index(header, ";"); semi >= 0 {
		mediaType = header[:semi]
		encoding = header[semi+1:]
	}
	if mediaType == "" {
		mediaType = defaultMediaType
	}

	return ImageSource{Type: encoding, MediaType: mediaType, Data: data}, true
}

// OaiImageURLToClaude converts an OpenAI image_url block into canonical
// form: a data: URI becomes an inline base64 image block; an http(s) URL is
// left as an image_url block (HTTP inlining is never attempted); anything
// else is dropped (ok=false).
func OaiImageURLToClaude(url string) (block ContentBlock, ok bool) {
	if strings.HasPrefix(url, "data:") {
		src, good := ExtractImageFromDataURI(url)
		if !good {
			return ContentBlock{}, false
		}
		return ContentBlock{Type: BlockImage, ImageSource: &src}, true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return ContentBlock{Type: BlockImageURL, ImageURL: &ImageURLRef{URL: url}}, true
	}
	return ContentBlock{}, false
}

// ClaudeImageToOai converts a canonical base64 image block into an OpenAI
// image_url block carrying a data: URI.
func ClaudeImageToOai(src ImageSource) ContentBlock {
	url := fmt.Sprintf("data:%s;%s,%s", src.MediaType, src.Type, src.Data)
	return ContentBlock{Type: BlockImageURL, ImageURL: &ImageURLRef{URL: url}}
}

// DocumentToImageSource converts a document block's source into an image
// source, for side-channel upload paths. Only base64-encoded documents
// convert; anything else yields ok=false.
func DocumentToImageSource(doc DocumentSource) (ImageSource, bool) {
	if doc.Type != "base64" || doc.Data == nil {
		return ImageSource{}, false
	}
	mediaType := defaultMediaType
	if doc.MediaType != nil && *doc.MediaType != "" {
		mediaType = *doc.MediaType
	}
	return ImageSource{Type: "base64", MediaType: mediaType, Data: *doc.Data}, true
}

// ProcessImageBlocks applies OpenAI->canonical image_url conversion to
// every block in a message, leaving all other blocks (including ones this
// function does not recognize) unchanged. Idempotent: a block that is not
// an image_url passes straight through.
func ProcessImageBlocks(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != BlockImageURL || b.ImageURL == nil {
			out = append(out, b)
			continue
		}
		converted, ok := OaiImageURLToClaude(b.ImageURL.URL)
		if !ok {
			// Unrecognized URL scheme: drop the block, matching the
			// source's "otherwise drop" rule.
			continue
		}
		out = append(out, converted)
	}
	return out
}

// IsValidBase64 reports whether s decodes as standard or raw-standard
// base64.
func IsValidBase64(s string) bool {
	if _, err := base64.StdEncoding.DecodeString(s); err == nil {
		return true
	}
	_, err := base64.RawStdEncoding.DecodeString(s)
	return err == nil
}
