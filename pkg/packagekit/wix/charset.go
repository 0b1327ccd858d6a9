package wix

import (
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// charsetReader lets the decoder walk documents declared in a single byte
// charset. Element structure is ASCII in all of them, so the stream is
// only masked, never transcoded, and decoder offsets stay byte offsets
// into the original document.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported encoding %s", label)
	}

	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return input, nil
	}

	if _, ok := enc.(*charmap.Charmap); !ok {
		return nil, errors.Errorf("encoding %s is not an ascii compatible single byte charset", label)
	}

	return transform.NewReader(input, asciiMask{}), nil
}

// asciiMask replaces every non-ASCII byte with '_', which is legal in
// names, text and attribute values alike.
type asciiMask struct {
	transform.NopResetter
}

func (asciiMask) Transform(dst, src []byte, atEOF bool) (int, int, error) {
	n := len(src)
	var err error
	if n > len(dst) {
		n = len(dst)
		err = transform.ErrShortDst
	}

	for i := 0; i < n; i++ {
		c := src[i]
		if c >= utf8.RuneSelf {
			c = '_'
		}
		dst[i] = c
	}

	return n, n, err
}
