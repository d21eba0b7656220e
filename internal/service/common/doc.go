// Package common holds helpers shared by the pipeline stages.
//
// It composes release URLs and performs the plain GET requests that the
// resolver, fetcher, verifier and reporter issue against remote endpoints.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
