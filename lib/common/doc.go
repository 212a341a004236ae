// Package common holds configuration and logging shared by the command line tool
// and the store packages.
//
//   - Config: Settings of the rtparam CLI (storage mode, engine, known virtual hosts,
//     output formats). String() renders the configuration for debug output.
//
//   - ClusterConfig: Parameters of a raft replicated store with helpers that convert
//     them into the Dragonboat shard and NodeHost configurations.
//
//   - Logger: A logger.ILogger implementation installed as Dragonboat's logger factory,
//     so raft internals and this module log in one consistent format.
package common
