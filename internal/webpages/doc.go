// Package webpages maintains the index of third-party pages that cite texts.
//
// Pages arrive from the linker as untrusted, possibly concurrent and out of
// order reports. The Engine canonicalizes each url, merges the report into the
// single record kept for that url, and drops pages that carry no citations or
// match the exclusion patterns. Maintenance sweeps repair records written
// under older normalization rules, and Resolve serves the pages citing a
// given passage.
package webpages
