// Command node 是节点的薄入口：解析命令行参数，装配 fx 容器，运行
// 直到收到终止信号。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/veilnet/node/internal/app"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "node",
	Short: "content-addressed storage node",
	Long:  "node 启动一个参与匿名 P2P 内容寻址存储的节点：清单插入、单密钥获取与请求应答。",
	RunE: func(cmd *cobra.Command, args []string) error {
		fxApp := fx.New(app.Module())
		if err := fxApp.Start(cmd.Context()); err != nil {
			return fmt.Errorf("启动失败: %w", err)
		}
		<-fxApp.Done()
		return fxApp.Stop(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "节点数据目录")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
