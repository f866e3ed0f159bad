package decision

import (
	"strconv"
	"strings"

	"binance-ai-trader/internal/models"
)

// Parse defaults. A malformed or incomplete model reply degrades to "do
// nothing", never to an error.
const (
	defaultAction     = models.ActionHold
	defaultConfidence = 0.5
	defaultRiskLevel  = models.RiskMedium
)

// Parsed is the structured form of a model reply. Missing lists the fields
// the reply did not provide, which were filled with safe defaults.
type Parsed struct {
	Action     string
	Symbol     string
	Confidence float64
	RiskLevel  string
	Amount     float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
	Reason     string

	Missing []string
}

var validActions = map[string]bool{
	models.ActionHold:       true,
	models.ActionBuy:        true,
	models.ActionSell:       true,
	models.ActionOpenLong:   true,
	models.ActionOpenShort:  true,
	models.ActionCloseLong:  true,
	models.ActionCloseShort: true,
}

var riskAliases = map[string]string{
	"LOW":    models.RiskLow,
	"MEDIUM": models.RiskMedium,
	"HIGH":   models.RiskHigh,
	"低":      models.RiskLow,
	"中":      models.RiskMedium,
	"高":      models.RiskHigh,
}

// Parse converts a free-text model reply into a Parsed decision using the
// fixed labeled-line patterns of the reply contract. Every missing or
// malformed field falls back to a safe default and is recorded in Missing.
func Parse(reply string) Parsed {
	p := Parsed{
		Action:     defaultAction,
		Confidence: defaultConfidence,
		RiskLevel:  defaultRiskLevel,
	}

	found := map[string]bool{}
	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := splitLabeledLine(line)
		if !ok {
			continue
		}

		switch label {
		case "建议", "操作", "action":
			action := strings.ToUpper(strings.ReplaceAll(value, " ", "_"))
			if validActions[action] {
				p.Action = action
				found["action"] = true
			}
		case "交易币种", "币种", "symbol":
			symbol := strings.ToUpper(strings.Fields(value)[0])
			if symbol != "" {
				p.Symbol = symbol
				found["symbol"] = true
			}
		case "信心指数", "confidence":
			if c, ok := parseConfidence(value); ok {
				p.Confidence = c
				found["confidence"] = true
			}
		case "风险等级", "risk":
			if r, ok := riskAliases[strings.ToUpper(value)]; ok {
				p.RiskLevel = r
				found["risk"] = true
			}
		case "交易金额", "保证金", "金额", "amount":
			if v, ok := parseMoney(value); ok && v >= 0 {
				p.Amount = v
				found["amount"] = true
			}
		case "杠杆倍数", "杠杆", "leverage":
			if v, ok := parseMoney(strings.TrimSuffix(strings.ToLower(value), "x")); ok && v >= 1 {
				p.Leverage = int(v)
				found["leverage"] = true
			}
		case "止损价", "止损", "stop_loss":
			if v, ok := parseMoney(value); ok && v > 0 {
				p.StopLoss = v
			}
		case "止盈价", "止盈", "take_profit":
			if v, ok := parseMoney(value); ok && v > 0 {
				p.TakeProfit = v
			}
		case "理由", "原因", "reason":
			p.Reason = value
		}
	}

	for _, field := range []string{"action", "symbol", "confidence", "risk", "amount"} {
		if !found[field] {
			p.Missing = append(p.Missing, field)
		}
	}
	return p
}

// splitLabeledLine splits "label: value" tolerating markdown bullets, bold
// markers and full-width colons.
func splitLabeledLine(line string) (label, value string, ok bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*• \t")
	line = strings.ReplaceAll(line, "**", "")

	idx := strings.IndexAny(line, ":：")
	if idx <= 0 {
		return "", "", false
	}

	label = strings.TrimSpace(line[:idx])
	// Full-width colon is 3 bytes.
	rest := line[idx:]
	if strings.HasPrefix(rest, "：") {
		value = strings.TrimSpace(rest[len("："):])
	} else {
		value = strings.TrimSpace(rest[1:])
	}
	if label == "" || value == "" {
		return "", "", false
	}
	return strings.ToLower(label), value, true
}

// parseConfidence parses a confidence value, accepting both "0.8" and "80%".
func parseConfidence(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	percent := strings.HasSuffix(value, "%")
	value = strings.TrimSuffix(value, "%")

	c, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if percent || c > 1 {
		c /= 100
	}
	if c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}

// parseMoney parses a numeric value tolerating currency symbols, thousands
// separators and unit suffixes.
func parseMoney(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "$")
	value = strings.ReplaceAll(value, ",", "")
	if fields := strings.Fields(value); len(fields) > 0 {
		value = fields[0]
	}
	value = strings.TrimSuffix(strings.ToUpper(value), "USDT")

	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
