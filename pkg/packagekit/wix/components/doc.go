// Package components harvests a directory tree into wix component
// fragments.
//
// Every immediate subdirectory of the source directory becomes a
// ComponentGroup, and a Directory tree under TARGETDIR. Files with the
// same name (ignoring case) and the same bytes are only packaged once:
// later copies get their own component, but point their Source at the
// first copy.
package components
