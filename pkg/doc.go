// Package pkg provides the libraries behind stackfix, an iterative npm
// dependency-conflict resolver.
//
// # Overview
//
// A resolution applies requested dependency updates to a scratch copy of an
// npm project and repeats npm install until it succeeds. After every failure
// the install output is analyzed into conflicts, the packages involved are
// ranked, and a reasoning engine proposes version changes that respect the
// ranking. Every manifest change is committed so the run leaves an audit
// trail, and the final manifest and lockfile are copied back.
//
// The pkg directory is organized by concern:
//
//  1. [resolver] - the attempt state machine and the tool-call report
//  2. [conflict] - install-failure analysis into conflict records
//  3. [suggest] - prompt construction, response validation, corrective retries
//  4. [ranking] - package importance tiers and scores, cached per package
//  5. [workspace] and [vcs] - scratch copies, checkpoints and copy-back
//  6. [cache], [history] and [config] - storage and configuration
//  7. [integrations] - the npm registry and the reasoning API
//
// # Data Flow
//
//	Request (repo, updates)
//	         ↓
//	    [workspace] copy + git init, apply targets, commit
//	         ↓
//	    [installer] npm install ──success──→ copy back
//	         ↓ failure
//	    [conflict] analyze output, [ranking] rank packages
//	         ↓
//	    [suggest] engine proposes versions, validated against the registry
//	         ↓
//	    [workspace] apply + commit, next attempt
//
// # Quick Start
//
//	registry := npm.NewClient(cache.NewMemoryCache(nil), "")
//	engine := anthropic.NewClient(os.Getenv("ANTHROPIC_API_KEY"), "")
//	runner := installer.NewExec([]string{"npm", "install"}, 10*time.Minute, nil)
//
//	r := resolver.New(registry, runner, engine, nil)
//	res, err := r.Resolve(ctx, resolver.Request{
//	    RepoPath: "/work/app",
//	    Updates:  []resolver.DependencyUpdate{{Name: "react", TargetVersion: "18.2.0"}},
//	})
//	fmt.Print(resolver.Report(res))
//
// [resolver]: github.com/matzehuels/stackfix/pkg/resolver
// [conflict]: github.com/matzehuels/stackfix/pkg/conflict
// [suggest]: github.com/matzehuels/stackfix/pkg/suggest
// [ranking]: github.com/matzehuels/stackfix/pkg/ranking
// [workspace]: github.com/matzehuels/stackfix/pkg/workspace
// [vcs]: github.com/matzehuels/stackfix/pkg/vcs
// [cache]: github.com/matzehuels/stackfix/pkg/cache
// [history]: github.com/matzehuels/stackfix/pkg/history
// [config]: github.com/matzehuels/stackfix/pkg/config
// [integrations]: github.com/matzehuels/stackfix/pkg/integrations
// [installer]: github.com/matzehuels/stackfix/pkg/installer
package pkg
