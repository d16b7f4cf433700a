package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/AnuragDani/subscription-charger/internal/logger"
)

func main() {
	v := viper.New()
	v.SetDefault("PORT", "8101")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MOCK_PENDING_RATE", 10)
	v.SetDefault("MOCK_FAIL_RATE", 15)
	v.SetDefault("MOCK_UNKNOWN_RATE", 5)
	v.SetDefault("MOCK_RESPONSE_TIME", "250ms")
	v.AutomaticEnv()

	log := logger.New("mock-gateway", v.GetString("LOG_LEVEL"))

	rates := Rates{
		Pending: v.GetFloat64("MOCK_PENDING_RATE"),
		Fail:    v.GetFloat64("MOCK_FAIL_RATE"),
		Unknown: v.GetFloat64("MOCK_UNKNOWN_RATE"),
	}
	if !rates.valid() {
		log.Error("invalid mock gateway rates", "rates", rates)
		os.Exit(1)
	}

	gw := NewMockGateway(rates, v.GetDuration("MOCK_RESPONSE_TIME"), time.Now().UnixNano())
	addr := ":" + v.GetString("PORT")

	log.Info("mock gateway starting", "addr", addr, "pending_rate", rates.Pending, "fail_rate", rates.Fail, "unknown_rate", rates.Unknown)
	if err := http.ListenAndServe(addr, gw.Routes()); err != nil {
		log.Error("mock gateway stopped", "error", err)
		os.Exit(1)
	}
}
