package cli

import (
	"github.com/spf13/cobra"

	"depth-watch/internal/app"
)

var onceDryRun bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "执行一次深度测量周期后退出",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.OnceOptions{
			DryRun: onceDryRun,
		}
		return getApp().Once(cmd.Context(), opts)
	},
}

func init() {
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "Run without writing to storage")
}
