package param

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/rtparam/cmd/util"
	"github.com/ValentinKolb/rtparam/lib/params"
	"github.com/ValentinKolb/rtparam/lib/serializer"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
)

// runE wraps a command body so the store is released even if the body fails
// (cobra skips the post run hook on errors).
func runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			if session != nil {
				_ = session.Close()
				session = nil
			}
			return err
		}
		return nil
	}
}

// printLookup prints a record or "absent"
func printLookup(rec params.Record, ok bool) error {
	if !ok {
		fmt.Println("absent")
		return nil
	}
	return util.Print(os.Stdout, cfg, util.RecordViews([]params.Record{rec})[0])
}

var (
	setCmd = &cobra.Command{
		Use:   "set [vhost] [component] [name] [value]",
		Short: "Sets a scoped parameter and prints New or Old(previous value)",
		Args:  cobra.ExactArgs(4),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			res, err := session.Params.SetScoped(args[0], args[1], args[2], []byte(args[3]))
			if err != nil {
				return err
			}
			fmt.Println(res)
			return nil
		}),
	}
	setGlobalCmd = &cobra.Command{
		Use:   "set-global [id] [value]",
		Short: "Sets a global parameter and prints New or Old(previous value)",
		Args:  cobra.ExactArgs(2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			res, err := session.Params.SetGlobal(args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Println(res)
			return nil
		}),
	}
	getCmd = &cobra.Command{
		Use:   "get [vhost] [component] [name]",
		Short: "Reads a scoped parameter",
		Args:  cobra.ExactArgs(3),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			rec, ok, err := session.Params.Lookup(params.ScopedKey(args[0], args[1], args[2]))
			if err != nil {
				return err
			}
			return printLookup(rec, ok)
		}),
	}
	getGlobalCmd = &cobra.Command{
		Use:   "get-global [id]",
		Short: "Reads a global parameter",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			rec, ok, err := session.Params.Lookup(params.GlobalKey(args[0]))
			if err != nil {
				return err
			}
			return printLookup(rec, ok)
		}),
	}
	getOrSetCmd = &cobra.Command{
		Use:   "get-or-set [vhost] [component] [name] [default]",
		Short: "Reads a scoped parameter, storing the default if it is absent",
		Args:  cobra.ExactArgs(4),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			rec, err := session.Params.LookupOrSet(params.ScopedKey(args[0], args[1], args[2]), []byte(args[3]))
			if err != nil {
				return err
			}
			return printLookup(rec, true)
		}),
	}
	getOrSetGlobalCmd = &cobra.Command{
		Use:   "get-or-set-global [id] [default]",
		Short: "Reads a global parameter, storing the default if it is absent",
		Args:  cobra.ExactArgs(2),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			rec, err := session.Params.LookupOrSet(params.GlobalKey(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			return printLookup(rec, true)
		}),
	}
	listCmd = &cobra.Command{
		Use:   "list [vhost component]",
		Short: "Lists all parameters or the scoped parameters of a vhost and component ('_' matches any)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			var records []params.Record
			var err error
			if len(args) == 0 {
				records, err = session.Params.GetAll()
			} else {
				records, err = session.Params.GetAllScoped(params.ParseField(args[0]), params.ParseField(args[1]))
			}
			if err != nil {
				return err
			}
			return util.Print(os.Stdout, cfg, util.RecordViews(records))
		}),
	}
	rmCmd = &cobra.Command{
		Use:   "rm [vhost] [component] [name]",
		Short: "Removes a scoped parameter",
		Args:  cobra.ExactArgs(3),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			return session.Params.RemoveScoped(args[0], args[1], args[2])
		}),
	}
	rmGlobalCmd = &cobra.Command{
		Use:   "rm-global [id]",
		Short: "Removes a global parameter",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			return session.Params.RemoveGlobal(args[0])
		}),
	}
	rmMatchingCmd = &cobra.Command{
		Use:   "rm-matching [vhost] [component] [name]",
		Short: "Atomically removes all scoped parameters matching the pattern ('_' matches any)",
		Args:  cobra.ExactArgs(3),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			n, err := session.Params.RemoveMatching(params.Pattern{
				VHost:     params.ParseField(args[0]),
				Component: params.ParseField(args[1]),
				Name:      params.ParseField(args[2]),
			})
			if err != nil {
				return err
			}
			fmt.Printf("removed %d parameter(s)\n", n)
			return nil
		}),
	}
	exportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Writes all parameters to a file ('-' for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			s, err := serializer.FromName(cfg.Serializer)
			if err != nil {
				return err
			}
			records, err := session.Params.GetAll()
			if err != nil {
				return err
			}
			data, err := s.Serialize(records)
			if err != nil {
				return err
			}
			if args[0] == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(args[0], data, 0o644)
		}),
	}
	importCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "Stores all parameters of a file in a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			s, err := serializer.FromName(cfg.Serializer)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := s.Deserialize(data)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", args[0], err)
			}
			if err := session.Params.Restore(records); err != nil {
				return err
			}
			fmt.Printf("imported %d parameter(s)\n", len(records))
			return nil
		}),
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the configuration and engine statistics",
		Args:  cobra.NoArgs,
		RunE: runE(func(cmd *cobra.Command, args []string) error {
			fmt.Println(cfg.String())

			info, err := session.Store.GetDBInfo()
			if err != nil {
				return err
			}
			if err := util.Print(os.Stdout, cfg, info); err != nil {
				return err
			}

			if withMetrics, _ := cmd.Flags().GetBool("metrics"); withMetrics {
				fmt.Println()
				metrics.WritePrometheus(os.Stdout, false)
			}
			return nil
		}),
	}
)

func init() {
	infoCmd.Flags().Bool("metrics", false, util.WrapString("Also print the transaction metrics of this process in prometheus format"))
}
