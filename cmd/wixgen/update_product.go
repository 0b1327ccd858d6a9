package main

import (
	"context"
	"flag"

	"github.com/kolide/kit/logutil"
	"github.com/kolide/wixgen/pkg/config"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/kolide/wixgen/pkg/packagekit/wix"
	"github.com/peterbourgon/ff/v3"
)

func runUpdateProduct(args []string) error {
	flagset := flag.NewFlagSet("update-product", flag.ExitOnError)
	var (
		flDebug = flagset.Bool(
			"debug",
			false,
			"enable debug logging",
		)
		flSourceDir = flagset.String(
			"source_dir",
			"",
			"the directory source_file is relative to",
		)
		flSourceFile = flagset.String(
			"source_file",
			"",
			"the wix source file containing the Product element (example: Product.wxs)",
		)
		flProductID = flagset.String(
			"product_id",
			"",
			"the product guid. A new one is generated when empty",
		)
		flProductVersion = flagset.String(
			"product_version",
			"",
			"the product version, as Major.Minor[.Build[.Revision]]",
		)
		_ = flagset.String(
			config.ConfigFileFlag,
			"",
			"config file to parse options from (optional)",
		)
	)

	flagset.Usage = usageFor(flagset, "wixgen update-product [flags]")
	if err := ff.Parse(flagset, args, config.Options(args)...); err != nil {
		return err
	}

	logger := logutil.NewCLILogger(*flDebug)
	ctx := ctxlog.NewContext(context.Background(), logger)

	return wix.UpdateProduct(ctx, fileops.NewLocal(), wix.UpdateProductOptions{
		SourceDirectory: *flSourceDir,
		SourceFile:      *flSourceFile,
		ProductID:       *flProductID,
		ProductVersion:  *flProductVersion,
	})
}
