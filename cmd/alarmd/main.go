// alarmd — сервис доставки напоминаний календаря.
//
// Процесс периодически находит наступающие и брошенные триггеры
// напоминаний в шардах PostgreSQL, захватывает их и доставляет
// (почта через RabbitMQ, SMS через HTTP-шлюз) в момент наступления.
// Узлы масштабируются горизонтально: захват триггеров исключает
// двойную доставку.
//
// Использование:
//
//	alarmd [--config FILE] <command> [flags]
//
// Команды:
//
//	serve    Запустить сервис
//	sweep    Выполнить один цикл доставки и дождаться его задач
//	migrate  Применить схему ко всем шардам
//	version  Показать версию
//	tasks    Просмотр задач запущенного процесса (через API)
//	events   Уведомить процесс об изменении событий (через API)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/shaiso/Alarmd/internal/cli"
	"github.com/shaiso/Alarmd/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "alarmd",
		Short:         "alarmd — calendar alarm delivery service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (default: $ALARMD_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8084", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	loadFn := func() (*config.Config, error) { return config.Load(configPath) }
	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		newServeCmd(loadFn),
		newSweepCmd(loadFn),
		newMigrateCmd(loadFn),
		newVersionCmd(),
		cli.NewTasksCmd(clientFn, outputFn),
		cli.NewEventsCmd(clientFn, outputFn),
	)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "alarmd", version)
		},
	}
}
