// Package model defines the data structures shared by the reposync packages.
//
// # RepositoryDescriptor
//
// A [RepositoryDescriptor] is the remote metadata snapshot of one repository,
// as returned by the mirror for a given pass. Descriptors are immutable: the
// next fetch supersedes them wholesale.
//
// # RepositorySettings
//
// [RepositorySettings] is the persisted per-repository configuration keyed by
// (user, name). It tracks where the checkout lives and the lifecycle flags the
// supervisor consults.
//
// # Config
//
// [Config] is the value object handed to a scheduler instance. It is built
// with [DefaultConfig], optionally overlaid by a TOML file via [LoadConfigFile],
// and finally by command-line flags.
package model
