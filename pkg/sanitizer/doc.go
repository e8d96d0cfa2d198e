// Package sanitizer normalizes free-form input before validation and storage.
//
// All functions are idempotent and never fail: invalid input collapses to an
// empty string or empty slice.
//
//   - Notes: trim, drop control characters, collapse runs of spaces, keep line breaks
//   - Phone numbers: E.164 (+[country][number])
//   - Identifier lists: trim, drop empties and duplicates, keep order
package sanitizer
