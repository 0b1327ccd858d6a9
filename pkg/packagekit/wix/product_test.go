package wix

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/stretchr/testify/require"
)

const productDocument = `<?xml version="1.0" encoding="utf-8"?>
<!-- keep me -->
<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi">
    <Product Id="*"   Name='App &amp; Co'
             Language="1033" Version="0.0.1" Manufacturer="Kolide">
        <Package InstallerVersion="200" Compressed="yes" />
    </Product>
</Wix>
`

func writeSource(t *testing.T, contents string) (string, string) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Product.wxs"), []byte(contents), 0644))
	return dir, "Product.wxs"
}

func TestUpdateProduct(t *testing.T) {
	t.Parallel()

	dir, name := writeSource(t, productDocument)
	id := "a1b2c3d4-0000-4000-8000-0123456789ab"

	require.NoError(t, UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: dir,
		SourceFile:      name,
		ProductID:       id,
		ProductVersion:  "1.2.3.4",
	}))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	expected := strings.Replace(productDocument, `Id="*"`, `Id="`+id+`"`, 1)
	expected = strings.Replace(expected, `Version="0.0.1"`, `Version="1.2.3.4"`, 1)
	require.Equal(t, expected, string(data), "only the two attributes change")

	doc := &Wix{}
	require.NoError(t, xml.Unmarshal(data, doc))
	require.NotNil(t, doc.Product)
	require.Equal(t, id, doc.Product.Id)
	require.Equal(t, "1.2.3.4", doc.Product.Version)
	require.Equal(t, "App & Co", doc.Product.Name)
}

func TestUpdateProduct_GeneratesId(t *testing.T) {
	t.Parallel()

	dir, name := writeSource(t, productDocument)

	require.NoError(t, UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: dir,
		SourceFile:      name,
		ProductVersion:  "1.0",
	}))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	doc := &Wix{}
	require.NoError(t, xml.Unmarshal(data, doc))
	_, err = uuid.Parse(doc.Product.Id)
	require.NoError(t, err, "generated id %q", doc.Product.Id)
	require.Equal(t, "1.0", doc.Product.Version)
}

func TestUpdateProduct_AbsoluteSourceFile(t *testing.T) {
	t.Parallel()

	dir, name := writeSource(t, productDocument)

	require.NoError(t, UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: "/does/not/matter",
		SourceFile:      filepath.Join(dir, name),
		ProductVersion:  "2.0.0",
	}))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	require.Contains(t, string(data), `Version="2.0.0"`)
}

func TestUpdateProduct_NoProduct(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name string
		doc  string
	}{
		{
			name: "no product",
			doc:  `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Fragment/></Wix>`,
		},
		{
			name: "wrong namespace",
			doc:  `<Wix xmlns="http://example.com/other"><Product Id="x" Version="1.0"/></Wix>`,
		},
		{
			name: "product is not a child of the root",
			doc:  `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Fragment><Product Id="x"/></Fragment></Wix>`,
		},
		{
			name: "root is not wix",
			doc:  `<Include xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="x"/></Include>`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir, name := writeSource(t, tt.doc)

			var logBuf bytes.Buffer
			ctx := ctxlog.NewContext(context.Background(), log.NewLogfmtLogger(&logBuf))

			require.NoError(t, UpdateProduct(ctx, fileops.NewLocal(), UpdateProductOptions{
				SourceDirectory: dir,
				SourceFile:      name,
				ProductVersion:  "1.0",
			}))

			data, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			require.Equal(t, tt.doc, string(data))
			require.Contains(t, logBuf.String(), "level=warn")
		})
	}
}

func TestUpdateProduct_ValidatesFirst(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		opts     UpdateProductOptions
		contains string
	}{
		{
			name:     "bad id",
			opts:     UpdateProductOptions{ProductID: "not-a-guid", ProductVersion: "bad", SourceFile: "x.wxs"},
			contains: "product id",
		},
		{
			name:     "bad version",
			opts:     UpdateProductOptions{ProductVersion: "1", SourceFile: "x.wxs"},
			contains: "product version",
		},
		{
			name:     "no source file",
			opts:     UpdateProductOptions{ProductVersion: "1.0"},
			contains: "source file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ops := &recordingOps{}
			err := UpdateProduct(context.Background(), ops, tt.opts)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.contains)
			require.False(t, ops.touched, "file was touched before validation finished")
		})
	}
}

func TestUpdateProduct_MissingFile(t *testing.T) {
	t.Parallel()

	err := UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: t.TempDir(),
		SourceFile:      "Missing.wxs",
		ProductVersion:  "1.0",
	})
	require.Error(t, err)
}

func TestUpdateProduct_ReadOnly(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("posix permission bits")
	}

	dir, name := writeSource(t, productDocument)
	path := filepath.Join(dir, name)
	require.NoError(t, os.Chmod(path, 0444))

	require.NoError(t, UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: dir,
		SourceFile:      name,
		ProductVersion:  "3.1",
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode().Perm()&0200)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `Version="3.1"`)
}

func TestSetProductAttributes(t *testing.T) {
	t.Parallel()

	const id = "11111111-2222-3333-4444-555555555555"

	var tests = []struct {
		name     string
		in       string
		expected string
	}{
		{
			name:     "replace both",
			in:       `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Version="0.1" Id="old"></Product></Wix>`,
			expected: `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Version="9.8.7" Id="` + id + `"></Product></Wix>`,
		},
		{
			name:     "append missing",
			in:       `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Name="x"></Product></Wix>`,
			expected: `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Name="x" Id="` + id + `" Version="9.8.7"></Product></Wix>`,
		},
		{
			name:     "append one",
			in:       `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id='old' Name="x"></Product></Wix>`,
			expected: `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id='` + id + `' Name="x" Version="9.8.7"></Product></Wix>`,
		},
		{
			name:     "self closing",
			in:       `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product/></Wix>`,
			expected: `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="` + id + `" Version="9.8.7"/></Wix>`,
		},
		{
			name:     "prefixed namespace",
			in:       `<w:Wix xmlns:w="http://schemas.microsoft.com/wix/2006/wi"><w:Product Id="" /></w:Wix>`,
			expected: `<w:Wix xmlns:w="http://schemas.microsoft.com/wix/2006/wi"><w:Product Id="` + id + `" Version="9.8.7" /></w:Wix>`,
		},
		{
			name:     "byte order mark",
			in:       "\xEF\xBB\xBF" + `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="a"/></Wix>`,
			expected: "\xEF\xBB\xBF" + `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="` + id + `" Version="9.8.7"/></Wix>`,
		},
		{
			name:     "windows-1252",
			in:       `<?xml version='1.0' encoding='windows-1252'?><Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="*" Version="1.0"/></Wix>`,
			expected: `<?xml version='1.0' encoding='windows-1252'?><Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="` + id + `" Version="9.8.7"/></Wix>`,
		},
		{
			name:     "windows-1252 with high bytes",
			in:       "<?xml version=\"1.0\" encoding=\"windows-1252\"?>\n<!-- \xA9 Kolide -->\n" + `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Manufacturer="Caf` + "\xE9" + `" Id="*"><Package Comments="` + "\x93hi\x94" + `"/></Product></Wix>`,
			expected: "<?xml version=\"1.0\" encoding=\"windows-1252\"?>\n<!-- \xA9 Kolide -->\n" + `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Manufacturer="Caf` + "\xE9" + `" Id="` + id + `" Version="9.8.7"><Package Comments="` + "\x93hi\x94" + `"/></Product></Wix>`,
		},
		{
			name:     "iso-8859-1",
			in:       `<?xml version="1.0" encoding="ISO-8859-1"?><Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Name="` + "\xC5" + `"/></Wix>`,
			expected: `<?xml version="1.0" encoding="ISO-8859-1"?><Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Name="` + "\xC5" + `" Id="` + id + `" Version="9.8.7"/></Wix>`,
		},
		{
			name:     "only the first product",
			in:       `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="a"/><Product Id="b"/></Wix>`,
			expected: `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product Id="` + id + `" Version="9.8.7"/><Product Id="b"/></Wix>`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, found, err := SetProductAttributes([]byte(tt.in), id, "9.8.7")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, tt.expected, string(out))
		})
	}
}

func TestSetProductAttributes_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := SetProductAttributes([]byte(`<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product`), "x", "1.0")
	require.Error(t, err)
}

func TestSetProductAttributes_UnsupportedEncoding(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		encoding string
	}{
		{name: "multi byte", encoding: "shift_jis"},
		{name: "utf-16", encoding: "utf-16"},
		{name: "unknown", encoding: "not-a-charset"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := `<?xml version="1.0" encoding="` + tt.encoding + `"?><Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product/></Wix>`
			_, found, err := SetProductAttributes([]byte(doc), "x", "1.0")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.encoding)
			require.False(t, found)
		})
	}
}

func TestValidateVersion(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		in    string
		valid bool
	}{
		{in: "1.0", valid: true},
		{in: "1.2.3", valid: true},
		{in: "1.2.3.4", valid: true},
		{in: "0.0.0.0", valid: true},
		{in: "2147483647.0", valid: true},
		{in: "", valid: false},
		{in: "1", valid: false},
		{in: "1.2.3.4.5", valid: false},
		{in: "a.b", valid: false},
		{in: "1..2", valid: false},
		{in: "-1.0", valid: false},
		{in: "+1.0", valid: false},
		{in: "1.0 ", valid: false},
		{in: "2147483648.0", valid: false},
	}

	for _, tt := range tests {
		if tt.valid {
			require.NoError(t, ValidateVersion(tt.in), tt.in)
		} else {
			require.Error(t, ValidateVersion(tt.in), tt.in)
		}
	}
}

var generatedGuid = regexp.MustCompile(`Id="[0-9a-f-]{36}"`)

func TestUpdateProduct_GeneratedIdFormat(t *testing.T) {
	t.Parallel()

	dir, name := writeSource(t, `<Wix xmlns="http://schemas.microsoft.com/wix/2006/wi"><Product/></Wix>`)

	require.NoError(t, UpdateProduct(context.Background(), fileops.NewLocal(), UpdateProductOptions{
		SourceDirectory: dir,
		SourceFile:      name,
		ProductVersion:  "1.0",
	}))

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	require.Regexp(t, generatedGuid, string(data))
}

// recordingOps notes whether anything reached the filesystem.
type recordingOps struct {
	fileops.Local
	touched bool
}

func (r *recordingOps) ReadFile(ctx context.Context, path string) ([]byte, error) {
	r.touched = true
	return nil, os.ErrNotExist
}

func (r *recordingOps) WriteFile(ctx context.Context, path string, data []byte) error {
	r.touched = true
	return os.ErrPermission
}

func (r *recordingOps) ClearReadOnly(ctx context.Context, path string) error {
	r.touched = true
	return os.ErrPermission
}
