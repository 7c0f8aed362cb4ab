// Package main provides the entry point for the portfolio backend server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quantfolio/portfolio-backend/internal/api"
	"github.com/quantfolio/portfolio-backend/internal/data"
	"github.com/quantfolio/portfolio-backend/internal/portfolio"
	"github.com/quantfolio/portfolio-backend/pkg/types"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting portfolio backend",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("dataDir", cfg.Data.DataDir),
		zap.String("quoteToken", cfg.Data.QuoteToken),
	)

	dataStore, err := data.NewStore(logger, cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}

	engine := portfolio.NewEngine(logger, cfg.Engine)
	server := api.NewServer(logger, cfg.Server, engine, dataStore, cfg.Data.QuoteToken)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
	)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

type appConfig struct {
	Server *types.ServerConfig
	Data   *types.DataConfig
	Engine portfolio.Config
}

func loadConfig(path string) (*appConfig, error) {
	v := viper.New()

	server := types.DefaultServerConfig()
	dataCfg := types.DefaultDataConfig()
	engine := portfolio.DefaultConfig()

	v.SetDefault("server.host", server.Host)
	v.SetDefault("server.port", server.Port)
	v.SetDefault("server.websocket_path", server.WebSocketPath)
	v.SetDefault("server.read_timeout", server.ReadTimeout)
	v.SetDefault("server.write_timeout", server.WriteTimeout)
	v.SetDefault("data.dir", dataCfg.DataDir)
	v.SetDefault("data.quote_token", dataCfg.QuoteToken)
	v.SetDefault("engine.risk_free_rate", engine.RiskFreeRate)
	v.SetDefault("engine.max_position_size", engine.MaxPositionSize)
	v.SetDefault("engine.min_position_size", engine.MinPositionSize)
	v.SetDefault("engine.rebalance_threshold", engine.RebalanceThreshold)
	v.SetDefault("engine.max_holdings", engine.MaxHoldings)
	v.SetDefault("engine.max_iterations", engine.MaxIterations)
	v.SetDefault("engine.min_liquidity_score", engine.MinLiquidityScore)
	v.SetDefault("engine.min_market_cap", engine.MinMarketCap)
	v.SetDefault("engine.max_correlation", engine.MaxCorrelation)
	v.SetDefault("engine.parallelism", engine.Parallelism)

	v.SetEnvPrefix("PORTFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	server.Host = v.GetString("server.host")
	server.Port = v.GetInt("server.port")
	server.WebSocketPath = v.GetString("server.websocket_path")
	server.ReadTimeout = v.GetDuration("server.read_timeout")
	server.WriteTimeout = v.GetDuration("server.write_timeout")

	dataCfg.DataDir = v.GetString("data.dir")
	dataCfg.QuoteToken = v.GetString("data.quote_token")

	engine.RiskFreeRate = v.GetFloat64("engine.risk_free_rate")
	engine.MaxPositionSize = v.GetFloat64("engine.max_position_size")
	engine.MinPositionSize = v.GetFloat64("engine.min_position_size")
	engine.RebalanceThreshold = v.GetFloat64("engine.rebalance_threshold")
	engine.MaxHoldings = v.GetInt("engine.max_holdings")
	engine.MaxIterations = v.GetInt("engine.max_iterations")
	engine.MinLiquidityScore = v.GetFloat64("engine.min_liquidity_score")
	engine.MinMarketCap = v.GetFloat64("engine.min_market_cap")
	engine.MaxCorrelation = v.GetFloat64("engine.max_correlation")
	engine.Parallelism = v.GetInt("engine.parallelism")

	return &appConfig{
		Server: server,
		Data:   dataCfg,
		Engine: engine,
	}, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
