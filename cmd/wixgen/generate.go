package main

import (
	"context"
	"flag"
	"runtime"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/logutil"
	"github.com/kolide/wixgen/pkg/config"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/kolide/wixgen/pkg/packagekit/wix/components"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
)

func runGenerate(args []string) error {
	flagset := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		flDebug = flagset.Bool(
			"debug",
			false,
			"enable debug logging",
		)
		flSourceDir = flagset.String(
			"source_dir",
			"",
			"the directory to harvest. Each subdirectory becomes a component group",
		)
		flTargetDir = flagset.String(
			"target_dir",
			"",
			"the directory the fragment is written to",
		)
		flFragment = flagset.String(
			"fragment",
			"AppFiles.wxs",
			"the fragment file name. Nothing is written when empty",
		)
		flConcurrency = flagset.Int(
			"concurrency",
			runtime.NumCPU(),
			"how many component groups to assemble at once",
		)
		_ = flagset.String(
			config.ConfigFileFlag,
			"",
			"config file to parse options from (optional)",
		)
	)

	flagset.Usage = usageFor(flagset, "wixgen generate [flags]")
	if err := ff.Parse(flagset, args, config.Options(args)...); err != nil {
		return err
	}

	logger := logutil.NewCLILogger(*flDebug)
	ctx := ctxlog.NewContext(context.Background(), logger)

	if *flSourceDir == "" {
		return errors.New("source_dir must be set")
	}
	if *flTargetDir == "" {
		return errors.New("target_dir must be set")
	}

	return runInterruptible(ctx, func(ctx context.Context) error {
		result, err := components.Generate(ctx, fileops.NewLocal(), components.Request{
			SourceDirectory:  *flSourceDir,
			TargetDirectory:  *flTargetDir,
			FragmentFileName: *flFragment,
		}, components.WithConcurrency(*flConcurrency))
		if err != nil {
			return errors.Wrap(err, "could not generate components")
		}

		if result != nil {
			level.Info(logger).Log(
				"msg", "wrote fragment",
				"path", result.OutputPath,
				"groups", len(result.Groups),
			)
		}
		return nil
	})
}
