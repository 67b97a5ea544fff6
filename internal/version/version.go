// Package version contains the service version information.
package version

// version and revision can be set by the linker.
var (
	version  = "1.0.0"
	revision = "unknown"
)

// Version returns the compiled-in service version.
func Version() (v string) {
	return version
}

// Revision returns the compiled-in Git revision.
func Revision() (r string) {
	return revision
}
