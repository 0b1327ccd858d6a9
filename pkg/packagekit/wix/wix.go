package wix

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
)

const (
	MainWxsName = "Installer.wxs" // written into the build dir by New
	msiName     = "out.msi"
)

type wixOptions struct {
	wixPath        string   // Where is wix installed
	sourceDir      string   // Passed to the compiler as var.SourceDir
	buildDir       string   // The wix tools want to work in a build dir.
	msArch         string   // What's the microsoft archtecture name?
	fragments      []string // Extra wxs files in buildDir, compiled with the main one
	dockerImage    string   // If in docker, what image?
	skipValidation bool     // Skip light validation. Seems to be needed for running in 32bit wine environments.
	cleanDirs      []string // directories to rm on cleanup

	execCC func(context.Context, string, ...string) *exec.Cmd // Allows test overrides
}

// Toolset drives candle and light over a build directory.
type Toolset struct {
	wixOptions
}

type WixOpt func(*wixOptions)

func As64bit() WixOpt {
	return func(wo *wixOptions) {
		wo.msArch = "x64"
	}
}

func As32bit() WixOpt {
	return func(wo *wixOptions) {
		wo.msArch = "x86"
	}
}

// If you're running this in a virtual win environment, you probably
// need to skip validation. LGHT0216 is a common error.
func SkipValidation() WixOpt {
	return func(wo *wixOptions) {
		wo.skipValidation = true
	}
}

func WithWix(path string) WixOpt {
	return func(wo *wixOptions) {
		wo.wixPath = path
	}
}

// WithFragment adds a wxs file, relative to the build dir, to the
// compile. Generated component fragments are usually added this way.
func WithFragment(name string) WixOpt {
	return func(wo *wixOptions) {
		wo.fragments = append(wo.fragments, name)
	}
}

func WithBuildDir(path string) WixOpt {
	return func(wo *wixOptions) {
		wo.buildDir = path
	}
}

func WithDocker(image string) WixOpt {
	return func(wo *wixOptions) {
		wo.dockerImage = image
	}
}

// WithExecCommand replaces exec.CommandContext for running the wix
// tools.
func WithExecCommand(execCC func(context.Context, string, ...string) *exec.Cmd) WixOpt {
	return func(wo *wixOptions) {
		wo.execCC = execCC
	}
}

// New takes a sourceDir of files, and a mainWxsContent of xml wix
// configs, and will return a Toolset suitable for building packages
// with.
func New(sourceDir string, mainWxsContent []byte, wixOpts ...WixOpt) (*Toolset, error) {
	wo := wixOptions{
		wixPath:   `C:\wix311`,
		sourceDir: sourceDir,

		execCC: exec.CommandContext,
	}

	for _, opt := range wixOpts {
		opt(&wo)
	}

	var err error
	if wo.buildDir == "" {
		wo.buildDir, err = os.MkdirTemp("", "wix-build-dir")
		if err != nil {
			return nil, errors.Wrap(err, "making temp wix-build-dir")
		}
		wo.cleanDirs = append(wo.cleanDirs, wo.buildDir)
	}

	if wo.msArch == "" {
		switch runtime.GOARCH {
		case "386":
			wo.msArch = "x86"
		case "amd64":
			wo.msArch = "x64"
		default:
			return nil, errors.Errorf("unknown arch for windows %s", runtime.GOARCH)
		}
	}

	mainWxsPath := filepath.Join(wo.buildDir, MainWxsName)

	if err := os.WriteFile(mainWxsPath, mainWxsContent, 0644); err != nil {
		return nil, errors.Wrapf(err, "writing %s", mainWxsPath)
	}

	return &Toolset{wixOptions: wo}, nil
}

// BuildDir is where sources, objects and the msi live. Fragments named
// by WithFragment are expected here.
func (wo *Toolset) BuildDir() string {
	return wo.buildDir
}

// Cleanup removes temp directories. Meant to be called in a defer.
func (wo *Toolset) Cleanup() {
	for _, d := range wo.cleanDirs {
		os.RemoveAll(d)
	}
}

// Package will run through the wix steps to produce a resulting
// package. This package will be written into the provided io.Writer,
// facilitating export to a file, buffer, or other storage backends.
func (wo *Toolset) Package(ctx context.Context, pkgOutput io.Writer) error {
	ctx, span := trace.StartSpan(ctx, "wix.Package")
	defer span.End()

	for _, f := range wo.fragments {
		if _, err := os.Stat(filepath.Join(wo.buildDir, f)); err != nil {
			return errors.Wrapf(err, "missing fragment %s", f)
		}
	}

	if err := wo.candle(ctx); err != nil {
		return errors.Wrap(err, "running candle")
	}

	if err := wo.light(ctx); err != nil {
		return errors.Wrap(err, "running light")
	}

	msiFH, err := os.Open(filepath.Join(wo.buildDir, msiName))
	if err != nil {
		return errors.Wrap(err, "opening msi output file")
	}
	defer msiFH.Close()

	if _, err := io.Copy(pkgOutput, msiFH); err != nil {
		return errors.Wrap(err, "copying output")
	}

	return nil
}

func (wo *Toolset) sources() []string {
	return append([]string{MainWxsName}, wo.fragments...)
}

func objectName(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".wixobj"
}

// candle invokes wix's candle command. This is the wix compiler, It
// preprocesses and compiles WiX source files into object files
// (.wixobj).
func (wo *Toolset) candle(ctx context.Context) error {
	args := []string{
		"-nologo",
		"-arch", wo.msArch,
		"-dSourceDir=" + wo.sourceDir,
	}
	args = append(args, wo.sources()...)

	_, err := wo.execOut(ctx,
		filepath.Join(wo.wixPath, "candle.exe"),
		args...,
	)
	return err
}

// light invokes wix's light command. This links and binds one or more
// .wixobj files and creates a Windows Installer database (.msi or
// .msm). See http://wixtoolset.org/documentation/manual/v3/overview/light.html for options
func (wo *Toolset) light(ctx context.Context) error {
	args := []string{
		"-nologo",
		"-dcl:high", // compression level
		"-dSourceDir=" + wo.sourceDir,
	}
	for _, src := range wo.sources() {
		args = append(args, objectName(src))
	}
	args = append(args, "-out", msiName)

	if wo.skipValidation {
		args = append(args, "-sval")
	}

	_, err := wo.execOut(ctx,
		filepath.Join(wo.wixPath, "light.exe"),
		args...,
	)
	return err
}

func (wo *Toolset) execOut(ctx context.Context, argv0 string, args ...string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if wo.dockerImage != "" {
		dockerArgs := []string{
			"run",
			"--entrypoint", "",
			"-v", fmt.Sprintf("%s:%s", wo.sourceDir, wo.sourceDir),
			"-v", fmt.Sprintf("%s:%s", wo.buildDir, wo.buildDir),
			"-w", wo.buildDir,
			wo.dockerImage,
			"wine",
			argv0,
		}
		argv0 = "docker"
		args = append(dockerArgs, args...)
	}

	cmd := wo.execCC(ctx, argv0, args...)

	level.Debug(logger).Log(
		"msg", "execing",
		"cmd", strings.Join(cmd.Args, " "),
	)

	cmd.Dir = wo.buildDir
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "run command %s %v\nstdout=%s\nstderr=%s", argv0, args, stdout, stderr)
	}
	return strings.TrimSpace(stdout.String()), nil
}
