package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/faust/internal/app"
	"serotonyl.ru/faust/internal/config"
	"serotonyl.ru/faust/internal/features/owner"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

var rootCmd = &cobra.Command{
	Use:   "faustd",
	Short: "Демон ограничения времени в приложениях",
	Long: `faustd принимает события устройства по WebSocket, блокирует приложения
из списка оверлеем переговоров, начисляет WP за время без них
и отдаёт пульт владельцу в Telegram.

Без подкоманды выполняется serve.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить демон до SIGINT/SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции и выйти",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cmd.Context(), cfg); err != nil {
			log.WithError(err).Error("Миграции не применены")
			return err
		}
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Напечатать Argon2id-хеш для OWNER_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := owner.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func runServe(cmd *cobra.Command, _ []string) error {
	log.Info("=== faustd запускается ===")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Контекст отменяется по Ctrl+C и docker stop
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Не удалось инициализировать приложение")
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Компонент завершился с ошибкой")
		return err
	}

	log.Info("=== faustd остановлен ===")
	return nil
}

// loadConfig читает конфигурацию и выставляет уровень логирования.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("Не удалось загрузить конфигурацию")
		return nil, err
	}
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}
	return cfg, nil
}
