package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagConfig   = config{
		writers: 2,
		readers: 2,
		tasks:   10000,
	}
)

var rootCmd = &cobra.Command{
	Use:   "rotptr-demo",
	Short: "Race readers and writers on one rotating pointer",
	Long: `Race readers and writers on one rotating pointer.

Every writer repeatedly replaces the stored number n with n+1 and records n.
Every reader repeatedly records the number it sees. Once all workers are
done, the writers' records must form the unbroken chain 0..writers*tasks-1
and no reader may have seen the number go backwards.
`,
	Example:      "  rotptr-demo --writers 4 --readers 8 --tasks 100000",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logrus.ParseLevel(flagLogLevel)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		logrus.SetLevel(lvl)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := run(cmd.Context(), flagConfig, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"final":         rep.final,
			"elapsed":       rep.elapsed,
			"readAcquires":  rep.stats.ReadAcquires,
			"readSpins":     rep.stats.ReadSpins,
			"writeAcquires": rep.stats.WriteAcquires,
			"writeSpins":    rep.stats.WriteSpins,
			"swapRetries":   rep.stats.SwapRetries,
			"readClearLost": rep.stats.ReadClearLost,
		}).Info("write chain verified")
		return nil
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.IntVarP(&flagConfig.writers, "writers", "w", flagConfig.writers, "number of writer goroutines")
	flags.IntVarP(&flagConfig.readers, "readers", "r", flagConfig.readers, "number of reader goroutines")
	flags.IntVarP(&flagConfig.tasks, "tasks", "n", flagConfig.tasks, "iterations per worker")
	flags.BoolVarP(&flagConfig.print, "print", "p", false, "print every observation as it happens")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("demo failed")
		stop()
		os.Exit(1)
	}
}
