package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"harscript/internal/config"
	"harscript/internal/logger"
	"harscript/pkg/api"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

type generateOptions struct {
	har       string
	blueprint string
	actions   string
	profile   string
	out       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "harscript",
		Short: "Turn recorded HAR traffic into load-test scripts",
		Long: `harscript converts a recorded HAR capture and a blueprint of correlation and
parameterization rules into a LoadRunner-style load-test script.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "harscript.yaml", "Configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newGenerateCmd(opts), newValidateCmd(opts), newRunsCmd(opts))
	return root
}

// setup 加载配置并创建服务
func (o *rootOptions) setup() (*config.Config, api.Service, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	svc, err := api.NewService(cfg, logger.New(cfg.LoggerOptions()))
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a script from a HAR capture and a blueprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, svc, err := root.setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := svc.Generate(ctx, api.GenerateRequest{
				CapturePath:   opts.har,
				BlueprintPath: opts.blueprint,
				ActionsPath:   opts.actions,
				Profile:       opts.profile,
				OutputDir:     opts.out,
				Now:           time.Now(),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d groups, %d requests, %d correlations, %d excluded\n",
				res.RunID, res.Stats.Groups, res.Stats.Requests, res.Stats.Correlations, res.Stats.Excluded)
			for _, f := range res.Files {
				fmt.Fprintf(out, "  %s\n", f)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.har, "har", "", "Recorded HAR capture")
	f.StringVar(&opts.blueprint, "blueprint", "", "Blueprint YAML with correlation and parameter rules")
	f.StringVar(&opts.actions, "actions", "", "Recorded action timeline (JSON)")
	f.StringVarP(&opts.profile, "profile", "p", "", "Blueprint profile")
	f.StringVarP(&opts.out, "out", "o", "script", "Output directory")
	_ = cmd.MarkFlagRequired("har")
	_ = cmd.MarkFlagRequired("blueprint")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "validate <blueprint>",
		Short: "Validate a blueprint file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, err := root.setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			rs, err := svc.Validate(args[0], profile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d correlations, %d parameters, %d excluded urls, %d files)\n",
				args[0], len(rs.Correlations), len(rs.Parameters), len(rs.ExcludeURLs), len(rs.Files))
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Blueprint profile")
	return cmd
}

func newRunsCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded generation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, svc, err := root.setup()
			if err != nil {
				return err
			}
			defer svc.Close()
			if !cfg.Sqlite.Enabled {
				return errors.New("run log is disabled; set sqlite.enabled in the configuration")
			}
			runs, err := svc.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-9s  %s  %s  groups=%d correlations=%d",
					r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Name, r.Groups, r.Correlations)
				if r.Error != "" {
					line += "  error=" + r.Error
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
