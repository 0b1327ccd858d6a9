package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/kit/logutil"
	"github.com/kolide/wixgen/pkg/config"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/kolide/wixgen/pkg/packagekit/wix"
	"github.com/kolide/wixgen/pkg/packagekit/wix/components"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
)

// execCommand runs candle and light. Tests replace it.
var execCommand = exec.CommandContext

func runCompile(args []string) error {
	flagset := flag.NewFlagSet("compile", flag.ExitOnError)
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
		flInstaller = flagset.String(
			"installer",
			"",
			"the main wix source file, containing the Product element",
		)
		flProductID = flagset.String(
			"product_id",
			"",
			"the product guid. A new one is generated when empty",
		)
		flProductVersion = flagset.String(
			"product_version",
			"",
			"the product version. The installer is used unpatched when empty",
		)
		flOutput = flagset.String(
			"output",
			"out.msi",
			"where to write the msi",
		)
		flFragment = flagset.String(
			"fragment",
			"AppFiles.wxs",
			"the name of the generated fragment in the build dir",
		)
		flConcurrency = flagset.Int(
			"concurrency",
			runtime.NumCPU(),
			"how many component groups to assemble at once",
		)
		flWixPath = flagset.String(
			"wix_path",
			`C:\wix311`,
			"the directory containing candle.exe and light.exe",
		)
		flBuildDir = flagset.String(
			"build_dir",
			"",
			"the wix build dir. A temporary one is used when empty",
		)
		flDocker = flagset.String(
			"docker_image",
			"",
			"run the wix tools under wine in this docker image (example: felfert/wix)",
		)
		flArch = flagset.String(
			"arch",
			"",
			"the msi architecture, x86 or x64. Defaults to the host's",
		)
		flSkipValidation = flagset.Bool(
			"skip_validation",
			false,
			"skip light validation. Often needed under wine",
		)
		_ = flagset.String(
			config.ConfigFileFlag,
			"",
			"config file to parse options from (optional)",
		)
	)

	flagset.Usage = usageFor(flagset, "wixgen compile [flags]")
	if err := ff.Parse(flagset, args, config.Options(args)...); err != nil {
		return err
	}

	logger := logutil.NewCLILogger(*flDebug)
	ctx := ctxlog.NewContext(context.Background(), logger)

	if *flSourceDir == "" {
		return errors.New("source_dir must be set")
	}
	if *flInstaller == "" {
		return errors.New("installer must be set")
	}
	if *flFragment == "" {
		return errors.New("fragment must be set")
	}

	sourceDir, err := filepath.Abs(*flSourceDir)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", *flSourceDir)
	}

	installerContent, err := os.ReadFile(*flInstaller)
	if err != nil {
		return errors.Wrap(err, "could not read the installer source")
	}

	wixOpts := []wix.WixOpt{
		wix.WithWix(*flWixPath),
		wix.WithFragment(*flFragment),
		wix.WithExecCommand(execCommand),
	}
	switch *flArch {
	case "":
	case "x86":
		wixOpts = append(wixOpts, wix.As32bit())
	case "x64":
		wixOpts = append(wixOpts, wix.As64bit())
	default:
		return errors.Errorf("unknown arch %s", *flArch)
	}
	if *flBuildDir != "" {
		wixOpts = append(wixOpts, wix.WithBuildDir(*flBuildDir))
	}
	if *flDocker != "" {
		wixOpts = append(wixOpts, wix.WithDocker(*flDocker))
	}
	if *flSkipValidation {
		wixOpts = append(wixOpts, wix.SkipValidation())
	}

	wixTool, err := wix.New(sourceDir, installerContent, wixOpts...)
	if err != nil {
		return errors.Wrap(err, "could not set up wix")
	}
	defer wixTool.Cleanup()

	ops := fileops.NewLocal()

	return runInterruptible(ctx, func(ctx context.Context) error {
		if *flProductVersion != "" {
			if err := wix.UpdateProduct(ctx, ops, wix.UpdateProductOptions{
				SourceDirectory: wixTool.BuildDir(),
				SourceFile:      wix.MainWxsName,
				ProductID:       *flProductID,
				ProductVersion:  *flProductVersion,
			}); err != nil {
				return errors.Wrap(err, "could not update product")
			}
		}

		if _, err := components.Generate(ctx, ops, components.Request{
			SourceDirectory:  sourceDir,
			TargetDirectory:  wixTool.BuildDir(),
			FragmentFileName: *flFragment,
		}, components.WithConcurrency(*flConcurrency)); err != nil {
			return errors.Wrap(err, "could not generate components")
		}

		outFH, err := os.Create(*flOutput)
		if err != nil {
			return errors.Wrap(err, "could not create output")
		}
		defer outFH.Close()

		if err := wixTool.Package(ctx, outFH); err != nil {
			outFH.Close()
			os.Remove(*flOutput)
			return errors.Wrap(err, "could not package msi")
		}

		level.Info(logger).Log(
			"msg", "created msi",
			"path", *flOutput,
		)

		return nil
	})
}
