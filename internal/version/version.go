// Package version pins the released module version.
package version

// Current is the semantic version of this build, without a leading "v".
const Current = "0.1.0"
