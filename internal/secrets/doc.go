// Package secrets detects and redacts credentials in source content before
// it is chunked and embedded. Projects with anonymize_secrets enabled run
// every file through a Redactor during the optimization phase.
package secrets
