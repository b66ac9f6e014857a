package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateBuy  float64
	simulateSell float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次套利价差并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateBuy <= 0 || simulateSell <= 0 {
			return errors.New("--buy 与 --sell 必须大于 0")
		}

		buy := decimal.NewFromFloat(simulateBuy)
		sell := decimal.NewFromFloat(simulateSell)
		return getApp().SimulateAlert(cmd.Context(), buy, sell)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateBuy, "buy", 0, "买入价 (参考币/资产)")
	simulateCmd.Flags().Float64Var(&simulateSell, "sell", 0, "卖出价 (参考币/资产)")
}
