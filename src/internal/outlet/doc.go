// Package outlet holds the immutable outlet catalog and the mark composer.
//
// A mark is shared by every outlet group. Each group owns the bits of its
// mask and nothing else, so selecting an outlet in one group never changes
// the bits of another:
//
//	newMark = (existing &^ group.Mask) | outlet.Value
//
// Every mark mutation in wlt goes through Compose. The Catalog is built once
// from a validated configuration and shared read-only between requests.
package outlet
