// Package secrets redacts credentials from extracted document text before
// it is chunked and embedded.
//
// Detection uses the gitleaks default rule set. Each detected secret is
// replaced with a [REDACTED:<rule-id>] marker so the surrounding text keeps
// its meaning for retrieval. Rule IDs and counts are reported; secret values
// never leave the package.
package secrets
