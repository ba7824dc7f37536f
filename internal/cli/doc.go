// Package cli is responsible for parsing command-line arguments, loading the
// dotenv file, and handling process-level concerns like exit codes. It
// translates flags and environment variables into the application's
// configuration.
package cli
