// Package output provides output formatting for docrelayctl.
//
// Command results render as an aligned text table by default; --output
// json and --output yaml switch to machine-readable encodings.
package output
