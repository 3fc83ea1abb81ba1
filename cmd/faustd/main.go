// Package main - точка входа демона faustd.
// Настраивает логирование и передаёт управление дереву команд cobra.
package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	setupLogging()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setupLogging настраивает формат логов.
// Уровень уточняется из конфигурации после её загрузки.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}
