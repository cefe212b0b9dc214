package fetcher

import (
	"bufio"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// DetermineEncoding sniffs the first KB of the body together with the
// Content-Type header. The reader is not advanced.
func DetermineEncoding(r *bufio.Reader, contentType string) encoding.Encoding {
	b, err := r.Peek(1024)
	if err != nil && len(b) == 0 {
		return unicode.UTF8
	}

	e, _, _ := charset.DetermineEncoding(b, contentType)
	return e
}
