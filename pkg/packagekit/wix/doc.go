/*
Package wix is a lightweight wrapper around the wix tooolset.

It is heavily inspired by golang's build system (2)

# Background and Theory Of Operations

wix's toolchain is based around compiling xml files into
installers. This package models the small part of the wix source
schema that generated fragments use, patches the Product element of a
hand written source, and drives the compiler.

The basic steps of making a package:
 1. Start with a main Installer.wxs containing a Product
 2. Use UpdateProduct to stamp its Id and Version
 3. Generate component fragments from a directory tree. See the
    components subpackage, which stands in for `heat`
 4. Use `candle` to take the wxs from (1) and (3) and make wixobjs
 5. Use `light` to compile the wixobjs into an msi

While this is a somewhat agnostic wrapper, it does make several
assumptions about the underlying process. It is not meant as a
complete wix wrapper.

# References

 1. http://wixtoolset.org/
 2. https://github.com/golang/build/blob/790500f5933191797a6638a27127be424f6ae2c2/cmd/release/releaselet.go#L224
*/
package wix
