// Package source produces raw items from the places vitals data lives:
// the vendor's sync API and exported archive files. Both sources speak the
// same paged contract so the orchestrator does not care which one it drains.
package source
