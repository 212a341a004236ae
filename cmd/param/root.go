package param

import (
	"github.com/ValentinKolb/rtparam/cmd/util"
	"github.com/ValentinKolb/rtparam/lib/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetLogger("cmd")

var (
	cfg     *common.Config
	session *util.Session

	// ParamCommands represents the parameter command group
	ParamCommands = &cobra.Command{
		Use:                "param",
		Short:              "Read and modify runtime parameters",
		PersistentPreRunE:  openSession,
		PersistentPostRunE: closeSession,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupStoreFlags(ParamCommands)

	ParamCommands.AddCommand(setCmd)
	ParamCommands.AddCommand(setGlobalCmd)
	ParamCommands.AddCommand(getCmd)
	ParamCommands.AddCommand(getGlobalCmd)
	ParamCommands.AddCommand(getOrSetCmd)
	ParamCommands.AddCommand(getOrSetGlobalCmd)
	ParamCommands.AddCommand(listCmd)
	ParamCommands.AddCommand(rmCmd)
	ParamCommands.AddCommand(rmGlobalCmd)
	ParamCommands.AddCommand(rmMatchingCmd)
	ParamCommands.AddCommand(exportCmd)
	ParamCommands.AddCommand(importCmd)
	ParamCommands.AddCommand(infoCmd)
	ParamCommands.AddCommand(benchCmd)
}

// openSession reads the configuration and opens the store
func openSession(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if cfg, err = util.GetConfig(); err != nil {
		return err
	}
	session, err = util.OpenStore(cfg)
	return err
}

// closeSession persists and releases the store. It only runs if the command succeeded.
func closeSession(_ *cobra.Command, _ []string) error {
	if session == nil {
		return nil
	}
	err := session.Close()
	session = nil
	return err
}
