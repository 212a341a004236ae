package node

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/rtparam/cmd/util"
	"github.com/ValentinKolb/rtparam/lib/store/dstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.GetLogger("cmd")

	// NodeCmd runs a raft replica of the parameter shard until it is interrupted
	NodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Run a replica of the replicated parameter store",
		Long: util.WrapString(`Starts a dragonboat node hosting one replica of the parameter shard and keeps it
running until SIGINT or SIGTERM. All replicas listed in --cluster-members must be started
this way. Configuration can be set via flags or RTPARAM_<FLAG> environment variables
(e.g. RTPARAM_REPLICA_ID=2).`),
		Args: cobra.NoArgs,
		RunE: run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupStoreFlags(NodeCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	cfg, err := util.GetConfig()
	if err != nil {
		return err
	}
	cfg.Mode = util.ModeRaft

	fmt.Println(cfg.String())

	replica, err := dstore.StartReplica(cfg.Cluster, util.EngineFactory(cfg))
	if err != nil {
		return err
	}
	defer replica.Stop()

	log.Infof("replica %d of shard %d is running", cfg.Cluster.ReplicaID, cfg.Cluster.ShardID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)
	return nil
}
