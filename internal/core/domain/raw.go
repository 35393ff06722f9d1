package domain

// RawDocument represents opaque bytes fetched by a document source.
// It is the source's output before parsing.
type RawDocument struct {
	// URI is the original location (file path, poll URL, etc).
	URI string

	// MIMEType is the content type (e.g., "application/xml").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata describes where the document came from
	// (e.g., "filename", "taxii_collection").
	Metadata map[string]string
}

// Metadata keys set by the built-in sources.
const (
	MetaFilename        = "filename"
	MetaPath            = "path"
	MetaTAXIIPollURL    = "taxii_poll_url"
	MetaTAXIICollection = "taxii_collection"
	MetaTAXIITimestamp  = "taxii_timestamp"
	MetaIngested        = "ingested"
	MetaPackageID       = "package_id"
	MetaTLP             = "tlp"
)

// CopyMetadata creates a shallow copy of metadata.
func CopyMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
