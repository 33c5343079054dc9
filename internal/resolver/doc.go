// Package resolver asks upstream for the latest identifier of a watched entity.
//
// The GitHub implementation applies one rule, PreferReleaseThenTag: the newest
// published release wins; only a repository without releases falls back to its
// newest tag.
package resolver
