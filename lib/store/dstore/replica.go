package dstore

import (
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/common"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/lni/dragonboat/v4"
	"time"
)

// Replica is a started NodeHost running one replica of the parameter shard
type Replica struct {
	NodeHost *dragonboat.NodeHost
	ShardID  uint64
	Store    store.IStore
}

// StartReplica starts a NodeHost and the shard replica described by cfg and
// waits until the shard has a leader (or the timeout of cfg expires).
func StartReplica(cfg common.ClusterConfig, factory store.DBFactory) (*Replica, error) {
	nh, err := dragonboat.NewNodeHost(cfg.ToNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	if err := nh.StartConcurrentReplica(cfg.ClusterMembers, false, CreateStateMachineFactory(factory), cfg.ToDragonboatConfig()); err != nil {
		nh.Close()
		return nil, fmt.Errorf("failed to start replica %d of shard %d: %w", cfg.ReplicaID, cfg.ShardID, err)
	}

	r := &Replica{
		NodeHost: nh,
		ShardID:  cfg.ShardID,
		Store:    NewDistributedStore(nh, cfg.ShardID, cfg.Timeout()),
	}

	if err := r.WaitForLeader(cfg.Timeout()); err != nil {
		r.Stop()
		return nil, err
	}
	return r, nil
}

// WaitForLeader blocks until the shard has elected a leader
func (r *Replica) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		leaderID, _, valid, err := r.NodeHost.GetLeaderID(r.ShardID)
		if err == nil && valid {
			log.Infof("shard %d ready, leader is replica %d", r.ShardID, leaderID)
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("shard %d has no leader after %s", r.ShardID, timeout)
}

// Stop stops the NodeHost and all its replicas
func (r *Replica) Stop() {
	r.NodeHost.Close()
}
