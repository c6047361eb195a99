// Package npm provides an HTTP client for the npm registry API.
//
// The client answers the three questions the resolver asks of the registry:
//
//   - which versions of a package exist ([Client.Versions], [Client.VersionExists])
//   - what a given version depends on and peer-requires ([Client.FetchVersion])
//   - how healthy and popular a package is ([Client.FetchPackage], [Client.FetchDownloads])
//
// # Usage
//
//	client := npm.NewClient(cache.NewMemoryCache(nil), "")
//	info, err := client.FetchPackage(ctx, "react", false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(info.Latest, len(info.Versions))
//
// # Caching
//
// Package metadata is cached under "meta:<name>" and per-version data under
// "meta:<name>@<version>", both with [cache.TTLMeta]. Pass refresh=true to
// [Client.FetchPackage] to bypass the cache.
package npm
