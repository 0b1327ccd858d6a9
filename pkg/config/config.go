// Package config holds the flag parsing helpers shared by the wixgen
// subcommands. Flags come from the command line, WIXGEN_ environment
// variables (optionally seeded from a .env file), and a config file in
// either the ff plain format or hcl.
package config

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
)

const (
	EnvVarPrefix   = "WIXGEN"
	ConfigFileFlag = "config"
	DotEnvFile     = ".env"
)

// ConfigFilePath finds the config file named on the command line, or in
// the environment. Empty means none.
func ConfigFilePath(args []string) string {
	for i, arg := range args {
		if arg == "--"+ConfigFileFlag || arg == "-"+ConfigFileFlag {
			if i+1 < len(args) {
				return strings.Trim(args[i+1], `"'`)
			}
			return ""
		}

		for _, prefix := range []string{"--" + ConfigFileFlag + "=", "-" + ConfigFileFlag + "="} {
			if strings.HasPrefix(arg, prefix) {
				return strings.Trim(strings.TrimPrefix(arg, prefix), `"'`)
			}
		}
	}

	return os.Getenv(EnvVarPrefix + "_" + strings.ToUpper(ConfigFileFlag))
}

// ParserFor picks a config file parser by extension. hcl files get
// HCLParser, everything else is the ff plain format.
func ParserFor(path string) ff.ConfigFileParser {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return HCLParser
	}
	return ff.PlainParser
}

// Options returns the ff options every subcommand parses with.
func Options(args []string) []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag(ConfigFileFlag),
		ff.WithConfigFileParser(ParserFor(ConfigFilePath(args))),
		ff.WithEnvVarPrefix(EnvVarPrefix),
	}
}

// LoadDotEnv copies variables from a dotenv file into the environment.
// Variables that are already set win. A missing file is fine.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "loading %s", path)
	}
	return nil
}

// HCLParser is an ff.ConfigFileParser for flat hcl files, eg:
//
//	source_dir  = "C:\\build\\root"
//	concurrency = 4
//	debug       = true
//
// Lists set the flag once per element.
func HCLParser(r io.Reader, set func(name, value string) error) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading hcl config")
	}

	file, diags := hclparse.NewParser().ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return errors.Wrap(diags, "parsing hcl config")
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return errors.Wrap(diags, "hcl config must only contain attributes")
	}

	// map order is random, flags are set in source order
	sorted := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		sorted = append(sorted, attr)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.Start.Byte < sorted[j].Range.Start.Byte
	})

	for _, attr := range sorted {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return errors.Wrapf(diags, "evaluating %s", attr.Name)
		}

		values, err := flagValues(val)
		if err != nil {
			return errors.Wrapf(err, "attribute %s", attr.Name)
		}

		for _, v := range values {
			if err := set(attr.Name, v); err != nil {
				return err
			}
		}
	}

	return nil
}

func flagValues(val cty.Value) ([]string, error) {
	if val.IsNull() {
		return nil, errors.New("null value")
	}

	ty := val.Type()
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		var values []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			v, err := primitiveValue(elem)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	v, err := primitiveValue(val)
	if err != nil {
		return nil, err
	}
	return []string{v}, nil
}

func primitiveValue(val cty.Value) (string, error) {
	if val.IsNull() {
		return "", errors.New("null value")
	}

	switch val.Type() {
	case cty.String:
		return val.AsString(), nil
	case cty.Number:
		return val.AsBigFloat().Text('f', -1), nil
	case cty.Bool:
		return strconv.FormatBool(val.True()), nil
	default:
		return "", errors.Errorf("unsupported type %s", val.Type().FriendlyName())
	}
}
