// Package integrations provides HTTP clients for the external services
// stackfix talks to.
//
// Each service has its own subpackage:
//
//   - [npm]: npm registry metadata, per-version manifests, download counts
//   - [anthropic]: the Messages API backing the reasoning engine
//
// # Client Pattern
//
// Service clients embed [Client], which provides:
//   - JSON GET and POST with default headers
//   - read-through caching via [Client.Cached] on any [cache.Cache] backend
//   - retry with exponential backoff for transient failures
//   - status mapping: 404 is [ErrNotFound], 429 and 5xx are retryable [ErrNetwork]
//
//	shared := cache.NewMemoryCache(nil)
//	client := npm.NewClient(shared, "")
//	pkg, err := client.FetchPackage(ctx, "react", false) // false = use cache
//
// [npm]: github.com/matzehuels/stackfix/pkg/integrations/npm
// [anthropic]: github.com/matzehuels/stackfix/pkg/integrations/anthropic
// [cache.Cache]: github.com/matzehuels/stackfix/pkg/cache.Cache
package integrations
