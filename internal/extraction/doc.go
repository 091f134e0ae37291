// Package extraction turns uploaded document bytes into plain text.
//
// The Registry dispatches on file extension first and content type second:
//
//   - .pdf is read page by page with ledongthuc/pdf
//   - .docx, .doc, .odt and .rtf go through docconv
//   - .html and .htm keep the visible body text via goquery
//   - .txt, .md and .csv are decoded as UTF-8
//
// Anything else fails with ErrUnsupportedFormat.
package extraction
