package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// helper functions to interface with Dragonboat
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ClusterConfig to the Dragonboat shard config
func (c *ClusterConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ClusterConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// Timeout returns the timeout for raft proposals and reads
func (c *ClusterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// --------------------------------------------------------------------------
// Configuration structs
// --------------------------------------------------------------------------

// ClusterConfig holds all parameters of a raft replicated parameter store.
type ClusterConfig struct {
	ShardID            uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string // replica id -> raft address
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	TimeoutSecond      int64
}

// DefaultClusterConfig returns a single node cluster listening on localhost
func DefaultClusterConfig(dataDir string) ClusterConfig {
	return ClusterConfig{
		ShardID:            1,
		ReplicaID:          1,
		ClusterMembers:     map[uint64]string{1: "localhost:63001"},
		RTTMillisecond:     100,
		SnapshotEntries:    1000,
		CompactionOverhead: 100,
		DataDir:            dataDir,
		TimeoutSecond:      5,
	}
}

// Config is the configuration of the rtparam command line tool.
type Config struct {
	// Storage
	Mode     string // local or raft
	Engine   string // maple or sqlite (local mode)
	DataFile string // snapshot file (maple) or database file (sqlite)

	// Known virtual hosts, scoped writes to other hosts fail
	VHosts []string

	// Output
	Serializer string // export/import format
	Output     string // json or yaml

	// Logging configuration
	LogLevel string

	Cluster ClusterConfig
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Mode", c.Mode)
	addField("Engine", c.Engine)
	addField("Data File", c.DataFile)

	addSection("Virtual Hosts")
	if len(c.VHosts) == 0 {
		addField("Known", "(any)")
	} else {
		addField("Known", strings.Join(c.VHosts, ", "))
	}

	addSection("Output")
	addField("Serializer", c.Serializer)
	addField("Format", c.Output)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Mode == "raft" {
		addSection("RAFT Parameters")
		addField("Shard ID", strconv.FormatUint(c.Cluster.ShardID, 10))
		addField("Node ID", strconv.FormatUint(c.Cluster.ReplicaID, 10))
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.Cluster.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.Cluster.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.Cluster.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.Cluster.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.Cluster.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.Cluster.TimeoutSecond))
		addField("Data Directory", c.Cluster.DataDir)

		sb.WriteString("  Cluster Members:\n")
		var keys []uint64
		for k := range c.Cluster.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.Cluster.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// ParseClusterMembers parses "1=host:port,2=host:port" into a member map
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, addr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid cluster member %q, expected ID=ADDRESS", part)
		}
		replicaID, err := strconv.ParseUint(id, 10, 64)
		if err != nil || replicaID == 0 {
			return nil, fmt.Errorf("invalid replica id %q", id)
		}
		members[replicaID] = addr
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no cluster members given")
	}
	return members, nil
}
