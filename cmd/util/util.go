package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/rtparam/lib/common"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple"
	"github.com/ValentinKolb/rtparam/lib/db/engines/sqlite"
	"github.com/ValentinKolb/rtparam/lib/params"
	"github.com/ValentinKolb/rtparam/lib/serializer"
	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/ValentinKolb/rtparam/lib/store/dstore"
	"github.com/ValentinKolb/rtparam/lib/store/lstore"
	"github.com/ValentinKolb/rtparam/lib/vhost"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	ModeLocal = "local"
	ModeRaft  = "raft"

	EngineMaple  = "maple"
	EngineSQLite = "sqlite"
)

var log = logger.GetLogger("cmd")

// WrapString wraps a help text at Wrap characters
func WrapString(text string) string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > Wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// SetupStoreFlags adds the storage, output and raft flags to cmd
func SetupStoreFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("mode", ModeLocal, WrapString("Storage mode: 'local' (single process) or 'raft' (replicated via dragonboat)"))
	flags.String("engine", EngineMaple, WrapString("Storage engine: 'maple' (in memory, persisted as snapshot file) or 'sqlite'"))
	flags.String("data-file", "rtparam.db", WrapString("Snapshot file (maple) or database file (sqlite) of the local mode. Empty keeps everything in memory"))
	flags.String("vhosts", "", WrapString("Comma separated list of known virtual hosts. Empty accepts every vhost"))
	flags.String("serializer", serializer.NameYAML, WrapString("Format of export and import files (binary, json, gob, yaml)"))
	flags.String("output", "yaml", WrapString("Output format of the commands (yaml, json)"))
	flags.String("log-level", "warn", WrapString("Level at which logs will be output (debug, info, warn, error)"))

	flags.Uint64("shard-id", 1, WrapString("(raft mode) ID of the parameter shard"))
	flags.Uint64("replica-id", 1, WrapString("(raft mode) ID of the local replica"))
	flags.String("cluster-members", "1=localhost:63001", WrapString("(raft mode) Comma separated list of replicas in the format 'id=host:port'"))
	flags.Uint64("rtt-millisecond", 100, WrapString("(raft mode) Average round trip time between two nodes. Election and heartbeat timeouts are derived from it"))
	flags.Uint64("snapshot-entries", 1000, WrapString("(raft mode) Number of applied entries between two automatic snapshots (0 disables them)"))
	flags.Uint64("compaction-overhead", 100, WrapString("(raft mode) Number of entries kept after compaction"))
	flags.String("data-dir", "rtparam-data", WrapString("(raft mode) Directory of the raft log and snapshots"))
	flags.Int64("timeout", 5, WrapString("(raft mode) Timeout in seconds of a single raft request"))
}

// InitConfig loads .env files and enables RTPARAM_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("rtparam")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper and initializes the loggers
func GetConfig() (*common.Config, error) {
	members, err := common.ParseClusterMembers(viper.GetString("cluster-members"))
	if err != nil {
		return nil, err
	}

	cfg := &common.Config{
		Mode:       strings.ToLower(viper.GetString("mode")),
		Engine:     strings.ToLower(viper.GetString("engine")),
		DataFile:   viper.GetString("data-file"),
		Serializer: viper.GetString("serializer"),
		Output:     strings.ToLower(viper.GetString("output")),
		LogLevel:   viper.GetString("log-level"),
		Cluster: common.ClusterConfig{
			ShardID:            viper.GetUint64("shard-id"),
			ReplicaID:          viper.GetUint64("replica-id"),
			ClusterMembers:     members,
			RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
			SnapshotEntries:    viper.GetUint64("snapshot-entries"),
			CompactionOverhead: viper.GetUint64("compaction-overhead"),
			DataDir:            viper.GetString("data-dir"),
			TimeoutSecond:      viper.GetInt64("timeout"),
		},
	}
	for _, v := range strings.Split(viper.GetString("vhosts"), ",") {
		if v = strings.TrimSpace(v); v != "" {
			cfg.VHosts = append(cfg.VHosts, v)
		}
	}

	switch cfg.Mode {
	case ModeLocal, ModeRaft:
	default:
		return nil, fmt.Errorf("invalid mode '%s' (use %s or %s)", cfg.Mode, ModeLocal, ModeRaft)
	}
	switch cfg.Engine {
	case EngineMaple, EngineSQLite:
	default:
		return nil, fmt.Errorf("invalid engine '%s' (use %s or %s)", cfg.Engine, EngineMaple, EngineSQLite)
	}
	if cfg.Output != "yaml" && cfg.Output != "json" {
		return nil, fmt.Errorf("invalid output format '%s' (use yaml or json)", cfg.Output)
	}

	if err := common.InitLoggers(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// --------------------------------------------------------------------------
// Store session
// --------------------------------------------------------------------------

// Session is an opened parameter store. Close must be called to persist the
// maple snapshot file and to release the engine or raft node.
type Session struct {
	Params  *params.Store
	Store   store.IStore
	Replica *dstore.Replica

	cfg *common.Config
	kv  db.KVDB // local mode only
}

// Guard returns the vhost guard configured by cfg
func Guard(cfg *common.Config) params.VHostGuard {
	if len(cfg.VHosts) == 0 {
		return vhost.AllowAll
	}
	return vhost.NewStaticGuard(cfg.VHosts...)
}

// EngineFactory returns a factory for the configured engine. Engines created
// by the factory are in memory, the raft log provides durability.
func EngineFactory(cfg *common.Config) store.DBFactory {
	if cfg.Engine == EngineSQLite {
		return func() db.KVDB {
			kv, err := sqlite.NewSQLiteDB(nil)
			if err != nil {
				log.Panicf("failed to create sqlite engine: %v", err)
			}
			return kv
		}
	}
	return func() db.KVDB { return maple.NewMapleDB(nil) }
}

// OpenStore opens the store described by cfg
func OpenStore(cfg *common.Config) (*Session, error) {
	s := &Session{cfg: cfg}

	switch cfg.Mode {
	case ModeRaft:
		r, err := dstore.StartReplica(cfg.Cluster, EngineFactory(cfg))
		if err != nil {
			return nil, err
		}
		s.Replica = r
		s.Store = r.Store

	default:
		kv, err := openLocalEngine(cfg)
		if err != nil {
			return nil, err
		}
		s.kv = kv
		s.Store = lstore.NewLocalStore(func() db.KVDB { return kv }, nil)
	}

	s.Params = params.NewStore(s.Store, Guard(cfg))
	return s, nil
}

// openLocalEngine opens the sqlite file or loads the maple snapshot file
func openLocalEngine(cfg *common.Config) (db.KVDB, error) {
	if cfg.Engine == EngineSQLite {
		return sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: cfg.DataFile})
	}

	kv := maple.NewMapleDB(nil)
	if cfg.DataFile == "" {
		return kv, nil
	}

	f, err := os.Open(cfg.DataFile)
	if os.IsNotExist(err) {
		log.Debugf("snapshot file %s does not exist, starting empty", cfg.DataFile)
		return kv, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := kv.Load(f); err != nil {
		return nil, fmt.Errorf("failed to load snapshot file %s: %w", cfg.DataFile, err)
	}
	return kv, nil
}

// Close persists the maple snapshot (local mode) and releases all resources
func (s *Session) Close() error {
	if s.Replica != nil {
		s.Replica.Stop()
		return nil
	}

	var saveErr error
	if s.cfg.Engine == EngineMaple && s.cfg.DataFile != "" {
		saveErr = saveSnapshot(s.kv, s.cfg.DataFile)
	}
	if err := s.Store.Close(); err != nil && saveErr == nil {
		saveErr = err
	}
	return saveErr
}

// saveSnapshot writes the snapshot to a temporary file and renames it over path
func saveSnapshot(kv db.KVDB, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := kv.Save(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// RecordView is the printed form of a record
type RecordView struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// RecordViews converts records for printing
func RecordViews(records []params.Record) []RecordView {
	views := make([]RecordView, len(records))
	for i, r := range records {
		views[i] = RecordView{Key: r.Key.String(), Value: string(r.Value)}
	}
	return views
}

// Print writes v to w in the configured output format
func Print(w io.Writer, cfg *common.Config, v any) error {
	if cfg.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
