// Package cmd implements the rtparam command line interface.
//
// Subpackages:
//
//   - param: commands reading and modifying parameters (set, get, list, rm-matching, export, ...)
//   - node: runs a raft replica of the parameter shard
//   - util: flags, configuration and store setup shared by the commands
//
// See rtparam --help for a list of all commands.
package cmd
