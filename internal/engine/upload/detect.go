package upload

import (
	"bufio"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

// DetectContentType guesses the MIME type from the head of r without
// consuming it. r should be buffered with at least sniffLen bytes.
func DetectContentType(r *bufio.Reader) string {
	head, _ := r.Peek(sniffLen)
	return mimetype.Detect(head).String()
}
