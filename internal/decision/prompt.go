package decision

import (
	"fmt"
	"strings"

	"binance-ai-trader/internal/ledger"
	"binance-ai-trader/internal/market"
	"binance-ai-trader/internal/models"
)

// replyFormat is the fixed reply contract given to the model. The parser in
// this package matches exactly these labels.
const replyFormat = `请严格按照以下格式回复（每行一个字段）:
建议: BUY/SELL/HOLD
交易币种: 币种符号（如 BTCUSDT）
信心指数: 0到1之间的小数
风险等级: LOW/MEDIUM/HIGH
交易金额: 美元金额
止损价: 价格（可选）
止盈价: 价格（可选）
理由: 简要说明`

const futuresReplyFormat = `请严格按照以下格式回复（每行一个字段）:
建议: OPEN_LONG/OPEN_SHORT/CLOSE_LONG/CLOSE_SHORT/HOLD
交易币种: 币种符号（如 BTCUSDT）
信心指数: 0到1之间的小数
风险等级: LOW/MEDIUM/HIGH
保证金: 美元金额
杠杆倍数: 整数
止损价: 价格（可选）
止盈价: 价格（可选）
理由: 简要说明`

// BuildSpotPrompt assembles the deterministic spot analysis prompt from the
// market snapshots, current holdings and account limits.
func BuildSpotPrompt(snapshots []market.Snapshot, holdings []ledger.Holding, account *models.Account) string {
	var b strings.Builder

	b.WriteString("你是一个专业的加密货币现货交易分析师。请基于以下市场数据和持仓情况给出交易建议。\n\n")

	b.WriteString("## 市场数据\n")
	for _, s := range snapshots {
		writeSnapshot(&b, s, false)
	}

	b.WriteString("\n## 当前持仓\n")
	if len(holdings) == 0 {
		b.WriteString("无持仓\n")
	}
	for _, h := range holdings {
		dust := ""
		if h.IsDust {
			dust = "（粉尘持仓，不可交易）"
		}
		fmt.Fprintf(&b, "- %s: 数量 %.8f, 成本价 $%.4f, 现价 $%.4f, 市值 $%.2f, 未实现盈亏 $%.2f%s\n",
			h.Symbol, h.Quantity, h.AvgCost, h.Price, h.Value, h.UnrealizedPnl, dust)
	}

	b.WriteString("\n## 账户限制\n")
	fmt.Fprintf(&b, "- 允许交易币种: %s\n", account.AllowedSymbols)
	fmt.Fprintf(&b, "- 单笔最大交易金额: $%.2f\n", account.MaxTradeAmount)
	fmt.Fprintf(&b, "- 每日最大亏损: $%.2f\n", account.MaxDailyLoss)

	b.WriteString("\n")
	b.WriteString(replyFormat)
	return b.String()
}

// BuildFuturesPrompt assembles the deterministic futures analysis prompt.
func BuildFuturesPrompt(snapshots []market.Snapshot, positions []ledger.PositionView, account *models.Account) string {
	var b strings.Builder

	b.WriteString("你是一个专业的加密货币合约交易分析师。请基于以下市场数据和持仓情况给出交易建议。\n\n")

	b.WriteString("## 市场数据\n")
	for _, s := range snapshots {
		writeSnapshot(&b, s, true)
	}

	b.WriteString("\n## 当前持仓\n")
	if len(positions) == 0 {
		b.WriteString("无持仓\n")
	}
	for _, v := range positions {
		p := v.Position
		fmt.Fprintf(&b, "- %s %s: 数量 %.8f, 开仓价 $%.4f, 标记价 $%.4f, 杠杆 %dx, 保证金 $%.2f, 未实现盈亏 $%.2f\n",
			p.Symbol, p.Side, p.Quantity, p.EntryPrice, v.MarkPrice, p.Leverage, p.Margin, v.UnrealizedPnl)
	}

	b.WriteString("\n## 账户限制\n")
	fmt.Fprintf(&b, "- 允许交易币种: %s\n", account.AllowedSymbols)
	fmt.Fprintf(&b, "- 单笔最大保证金: $%.2f\n", account.MaxPositionSize)
	fmt.Fprintf(&b, "- 最大杠杆倍数: %dx\n", account.MaxLeverage)
	fmt.Fprintf(&b, "- 每日最大亏损: $%.2f\n", account.MaxDailyLoss)

	b.WriteString("\n")
	b.WriteString(futuresReplyFormat)
	return b.String()
}

func writeSnapshot(b *strings.Builder, s market.Snapshot, futures bool) {
	fmt.Fprintf(b, "### %s\n", s.Symbol)
	fmt.Fprintf(b, "- 当前价格: $%.4f (24h %+.2f%%)\n", s.Price, s.Change24h)
	fmt.Fprintf(b, "- RSI(14): %.2f\n", s.RSI)
	fmt.Fprintf(b, "- EMA12/EMA26: %.4f / %.4f\n", s.EMAFast, s.EMASlow)
	fmt.Fprintf(b, "- MACD: %.4f, Signal: %.4f, Histogram: %.4f\n", s.MACD.MACD, s.MACD.Signal, s.MACD.Histogram)
	fmt.Fprintf(b, "- 布林带: 上轨 %.4f, 中轨 %.4f, 下轨 %.4f\n", s.Bollinger.Upper, s.Bollinger.Middle, s.Bollinger.Lower)
	if futures {
		fmt.Fprintf(b, "- 资金费率: %.6f\n", s.FundingRate)
	}
}
