package wix

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

// UpdateProductOptions describes which wix source file to patch, and
// with what.
type UpdateProductOptions struct {
	SourceDirectory string // Directory SourceFile is relative to
	SourceFile      string // wix source file containing a Product element
	ProductID       string // Product guid. Generated when empty
	ProductVersion  string // Major.Minor[.Build[.Revision]]
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// UpdateProduct sets the Id and Version attributes of the Product element
// in a wix source file. All validation happens before the file is
// touched. A document without a Product element is left alone.
func UpdateProduct(ctx context.Context, ops fileops.FileOps, opts UpdateProductOptions) error {
	ctx, span := trace.StartSpan(ctx, "wix.UpdateProduct")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	productID := opts.ProductID
	if productID == "" {
		productID = uuid.New().String()
	} else if _, err := uuid.Parse(productID); err != nil {
		return errors.Wrap(err, "product id is not a valid guid")
	}

	if err := ValidateVersion(opts.ProductVersion); err != nil {
		return errors.Wrap(err, "product version is not a valid Major.Minor.Build.Revision version number")
	}

	if opts.SourceFile == "" {
		return errors.New("source file is not specified")
	}

	fileName := opts.SourceFile
	if !filepath.IsAbs(fileName) {
		fileName = filepath.Join(opts.SourceDirectory, fileName)
	}

	data, err := ops.ReadFile(ctx, fileName)
	if err != nil {
		return errors.Wrap(err, "reading wix source")
	}

	patched, found, err := SetProductAttributes(data, productID, opts.ProductVersion)
	if err != nil {
		return errors.Wrapf(err, "patching %s", fileName)
	}

	if !found {
		level.Warn(logger).Log(
			"msg", "wix source file does not contain a Product element",
			"file", fileName,
		)
		return nil
	}

	level.Info(logger).Log(
		"msg", "updating product",
		"id", productID,
		"version", opts.ProductVersion,
		"file", fileName,
	)

	if err := ops.ClearReadOnly(ctx, fileName); err != nil {
		return err
	}

	if err := ops.WriteFile(ctx, fileName, patched); err != nil {
		return errors.Wrap(err, "writing wix source")
	}

	level.Info(logger).Log("msg", "wix source updated", "file", fileName)

	return nil
}

// ValidateVersion checks v is a 2 to 4 part dotted version, each part a
// non-negative 32 bit integer.
func ValidateVersion(v string) error {
	parts := strings.Split(v, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return errors.Errorf("%q must have between 2 and 4 components", v)
	}

	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return errors.Errorf("%q has a non-numeric component %q", v, p)
		}
		if _, err := strconv.ParseInt(p, 10, 32); err != nil {
			return errors.Wrapf(err, "%q has an out of range component", v)
		}
	}

	return nil
}

// SetProductAttributes rewrites the Id and Version attributes on the
// /Wix/Product element of a wix document. Only the bytes of that start
// tag change. found is false when there is no such element.
func SetProductAttributes(doc []byte, id, version string) ([]byte, bool, error) {
	start, end, found, err := findProductTag(doc)
	if err != nil || !found {
		return nil, found, err
	}

	tag, err := setAttributes(doc[start:end], []xml.Attr{
		{Name: xml.Name{Local: "Id"}, Value: id},
		{Name: xml.Name{Local: "Version"}, Value: version},
	})
	if err != nil {
		return nil, false, err
	}

	out := make([]byte, 0, len(doc)-int(end-start)+len(tag))
	out = append(out, doc[:start]...)
	out = append(out, tag...)
	out = append(out, doc[end:]...)

	return out, true, nil
}

// findProductTag returns the byte range of the start tag of the first
// Product element directly under a Wix root, both in the wix namespace.
func findProductTag(doc []byte) (int64, int64, bool, error) {
	var skew int64
	if bytes.HasPrefix(doc, utf8BOM) {
		skew = int64(len(utf8BOM))
	}

	dec := xml.NewDecoder(bytes.NewReader(doc[skew:]))
	dec.CharsetReader = charsetReader
	depth := 0

	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			return 0, 0, false, nil
		}
		if err != nil {
			return 0, 0, false, errors.Wrap(err, "parsing xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if t.Name.Space != Namespace || t.Name.Local != "Wix" {
					return 0, 0, false, nil
				}
			case 2:
				if t.Name.Space == Namespace && t.Name.Local == "Product" {
					return start + skew, dec.InputOffset() + skew, true, nil
				}
			}
		case xml.EndElement:
			depth--
		}
	}
}

type attrSpan struct {
	name       string
	valueStart int
	valueEnd   int
}

// setAttributes edits a raw start tag, replacing the values of existing
// attributes in place and appending missing ones after the last
// attribute.
func setAttributes(tag []byte, attrs []xml.Attr) ([]byte, error) {
	spans, insertAt, err := scanAttributes(tag)
	if err != nil {
		return nil, err
	}

	type edit struct {
		start, end int
		text       string
	}
	var edits []edit
	var appended strings.Builder

	for _, a := range attrs {
		value, err := escapeAttr(a.Value)
		if err != nil {
			return nil, err
		}

		replaced := false
		for _, s := range spans {
			if s.name == a.Name.Local {
				edits = append(edits, edit{s.valueStart, s.valueEnd, value})
				replaced = true
				break
			}
		}

		if !replaced {
			appended.WriteString(" " + a.Name.Local + `="` + value + `"`)
		}
	}

	if appended.Len() > 0 {
		edits = append(edits, edit{insertAt, insertAt, appended.String()})
	}

	// Apply back to front so earlier offsets stay valid
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	out := append([]byte(nil), tag...)
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		out = append(out[:e.start], append([]byte(e.text), out[e.end:]...)...)
	}

	return out, nil
}

// scanAttributes walks a well formed start tag. insertAt is the offset
// just past the last attribute value (or the element name).
func scanAttributes(tag []byte) ([]attrSpan, int, error) {
	isSpace := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\r' || c == '\n'
	}

	if len(tag) < 2 || tag[0] != '<' {
		return nil, 0, errors.New("not a start tag")
	}

	i := 1
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	insertAt := i

	var spans []attrSpan
	for {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) {
			return nil, 0, errors.New("unterminated start tag")
		}
		if tag[i] == '/' || tag[i] == '>' {
			return spans, insertAt, nil
		}

		nameStart := i
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '=' {
			i++
		}
		name := string(tag[nameStart:i])

		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || tag[i] != '=' {
			return nil, 0, errors.Errorf("attribute %s has no value", name)
		}
		i++
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) || (tag[i] != '"' && tag[i] != '\'') {
			return nil, 0, errors.Errorf("attribute %s is not quoted", name)
		}

		quote := tag[i]
		valueStart := i + 1
		valueEnd := bytes.IndexByte(tag[valueStart:], quote)
		if valueEnd < 0 {
			return nil, 0, errors.Errorf("attribute %s is unterminated", name)
		}
		valueEnd += valueStart

		spans = append(spans, attrSpan{name: name, valueStart: valueStart, valueEnd: valueEnd})
		i = valueEnd + 1
		insertAt = i
	}
}

func escapeAttr(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", errors.Wrap(err, "escaping attribute")
	}
	return buf.String(), nil
}
