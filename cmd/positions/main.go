package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"trade-executor-go/broker"
	"trade-executor-go/config"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	client, err := broker.NewAlpacaClient(broker.AlpacaConfig{
		BaseURL:   cfg.Broker.BaseURL,
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
		Timeout:   cfg.Broker.Timeout,
	})
	if err != nil {
		log.Fatalf("初始化券商客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	account, err := client.GetAccount(ctx)
	if err != nil {
		log.Fatalf("查询账户失败: %v", err)
	}
	fmt.Printf("equity=%.2f %s\n", account.Equity, account.Currency)

	positions, err := client.ListPositions(ctx)
	if err != nil {
		log.Fatalf("查询持仓失败: %v", err)
	}
	if len(positions) == 0 {
		fmt.Println("当前无持仓")
		return
	}
	tickers := make([]string, 0, len(positions))
	for t := range positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		p := positions[t]
		fmt.Printf("%s qty=%.6f avg_entry=%.4f\n", p.Ticker, p.Quantity, p.AvgEntryPrice)
	}
}
