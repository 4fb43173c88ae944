package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logFlags struct {
	verbose bool
	file    string
}

var logOpts logFlags

var rootCmd = &cobra.Command{
	Use:   "framerender",
	Short: "Render animated web pages frame by frame",
	Example: `  $ framerender render --url file://$PWD/index.html --video out.mp4
  $ framerender serve --port 8080`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&logOpts.verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logOpts.file, "log-file", "", "also write json logs to this file, rotated")
	rootCmd.AddCommand(renderCmd(), serveCmd())
}

// newLogger logs to stderr for people, and optionally to a rotated file as json.
func newLogger() *zap.Logger {
	level := zap.InfoLevel
	if logOpts.verbose {
		level = zap.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), zap.NewAtomicLevelAt(level)),
	}

	if logOpts.file != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logOpts.file,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), writer, zap.NewAtomicLevelAt(level)))
	}

	return zap.New(zapcore.NewTee(cores...))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
