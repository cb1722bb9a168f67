package cmd

import (
	"context"
	"jersey-hub/app/config"
	"jersey-hub/app/database"
	"jersey-hub/app/logger"
	"jersey-hub/app/service"
	"jersey-hub/pkg/sse"

	"github.com/spf13/cobra"
)

var syncSites []string

// syncCmd 一次性全量同步命令，不启动 HTTP 服务
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "从各站点全量拉取商品数据",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		log := logger.New(cfg.Log)
		defer log.Sync()

		if err := database.Init(cfg, log); err != nil {
			log.Fatalf("数据库初始化失败: %v", err)
		}
		defer database.Close()

		hub := sse.NewHub()
		go hub.Run()

		sites := syncSites
		if len(sites) == 0 {
			sites = cfg.SiteKeys()
		}

		syncService := service.NewSyncService(cfg, log, hub)
		result, err := syncService.FullSync(context.Background(), sites)
		if err != nil {
			log.Fatalf("全量同步失败: %v", err)
		}
		log.Infof("🏁 全量同步完成: 成功 %d, 失败 %d (%.1fs)",
			result.Success, result.Failed, result.Duration.Seconds())
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncSites, "sites", nil, "要同步的站点（默认全部）")
	rootCmd.AddCommand(syncCmd)
}
