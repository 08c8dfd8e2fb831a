// Command arianpay runs a purchase/verify round trip against a gateway. With
// -stub it starts an embedded stand-in gateway first, which makes it handy
// for trying the client without merchant credentials.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/exp/slog"
	"gopkg.in/yaml.v3"

	arianpay "github.com/arianpay/arianpay-go"
	"github.com/arianpay/arianpay-go/internal/gatewaytest"
)

type config struct {
	Gateway struct {
		BaseURL        string `yaml:"base_url"`
		TerminalNumber string `yaml:"terminal_number"`
		Username       string `yaml:"username"`
		Password       string `yaml:"password"`
	} `yaml:"gateway"`

	Demo struct {
		Invoice     string `yaml:"invoice"`
		Amount      int64  `yaml:"amount"`
		CallbackURL string `yaml:"callback_url"`
		Mobile      string `yaml:"mobile"`
	} `yaml:"demo"`
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config")
	stub := flag.Bool("stub", false, "run against an embedded stand-in gateway")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := run(*configPath, *stub, logger); err != nil {
		logger.Error("demo failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, stub bool, logger *slog.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if stub {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("listening tcp port: %w", err)
		}
		gw := gatewaytest.New(logger.With(slog.String("app", "stub-gateway")))
		go http.Serve(l, gw.Router())

		cfg.Gateway.BaseURL = "http://" + l.Addr().String()
		if cfg.Gateway.Username == "" {
			cfg.Gateway.Username = "demo"
			cfg.Gateway.Password = "demo"
		}
		logger.Info("stub gateway started", slog.String("addr", l.Addr().String()))
	}

	client := arianpay.NewClient(arianpay.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		TerminalNumber: cfg.Gateway.TerminalNumber,
		Username:       cfg.Gateway.Username,
		Password:       cfg.Gateway.Password,
	}, arianpay.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	invoice := cfg.Demo.Invoice
	if invoice == "" {
		invoice = fmt.Sprintf("INV-%d", time.Now().Unix())
	}

	result, err := client.Purchase(ctx, arianpay.PurchaseRequest{
		Invoice:     invoice,
		InvoiceDate: time.Now().Format("2006-01-02"),
		Amount:      cfg.Demo.Amount,
		CallbackURL: cfg.Demo.CallbackURL,
		Mobile:      cfg.Demo.Mobile,
	})
	if err != nil {
		return fmt.Errorf("purchase: %w", err)
	}
	logger.Info("purchase created",
		slog.String("invoice", invoice),
		slog.String("url_id", result.URLID),
		slog.String("url", result.URL))

	env, err := client.VerifyTransaction(ctx, invoice, result.URLID)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	logger.Info("verify result",
		slog.Int("result_code", env.ResultCode),
		slog.String("result_msg", env.ResultMsg))

	return nil
}
