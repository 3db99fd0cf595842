package main

import (
	"context"
	"fmt"
	"os"

	"pt-butler/agent"
	"pt-butler/config"
	"pt-butler/database"
	"pt-butler/downloader"
	"pt-butler/logging"
	"pt-butler/notify"
	"pt-butler/policy"
	"pt-butler/registry"
	"pt-butler/storage"
	"pt-butler/store"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const appVersion = "1.2.0"

var (
	configPath string
	flagUser   int64
	flagSite   string
)

func main() {
	root := &cobra.Command{
		Use:           "pt-butler",
		Short:         "PT 站免费种子自动下载分发",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	root.AddCommand(newRunCommand())
	root.AddCommand(newReclaimCommand())
	root.AddCommand(newTagsCommand())
	root.AddCommand(newAgentCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Int64VarP(&flagUser, "user", "u", 0, "账号 id")
	cmd.Flags().StringVarP(&flagSite, "site", "s", "", "站点标识")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("site")
}

// buildController 组装一次会话所需的全部组件
func buildController() (*downloader.Controller, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(cfg.Log)

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { database.Close(db) }

	st := store.New(db)
	user, err := st.GetUser(flagUser)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sess, err := config.NewSession(cfg, user, flagSite)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	reg := registry.New(sess, st)
	pol := policy.New(reg)

	var objStorage downloader.ObjectStorage
	if cfg.OSS.Endpoint != "" {
		oss, err := storage.NewOSS(cfg.OSS)
		if err != nil {
			// 对象存储只影响归档，不挡分发
			log.Warnf("oss unavailable, archiving disabled: %v", err)
		} else {
			objStorage = oss
		}
	}

	agents := func(ip string, port int) downloader.AgentClient {
		return agent.NewClient(ip, port, cfg.Agent.Token)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify)
	}

	ctrl := downloader.NewController(sess, st, reg, pol, objStorage, agents, notifier)
	return ctrl, cleanup, nil
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一轮完整会话：分发新种、移除过期、回收空间",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup, err := buildController()
			if err != nil {
				return err
			}
			defer cleanup()
			return ctrl.Run(context.Background())
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func newReclaimCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "只执行过期移除与低空间回收",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup, err := buildController()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			if err := ctrl.Registry().Load(ctx); err != nil {
				return err
			}
			ctrl.RemoveExpired(ctx)
			ctrl.ReclaimSpace(ctx)
			log.Info(ctrl.Report().String())
			return nil
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func newTagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "标签对账：按落盘路径补齐客户端里的归属标签",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, cleanup, err := buildController()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			if err := ctrl.Registry().Load(ctx); err != nil {
				return err
			}
			ctrl.Policy().SyncTags(ctx)
			return nil
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func newAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "以伴生 agent 模式运行，在下载服务器上提供文件系统 RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log)
			return agent.NewServer(cfg.Agent).Run()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pt-butler v%s\n", appVersion)
		},
	}
}
