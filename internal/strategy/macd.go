package strategy

import "breakout-trader/internal/model"

// MACDCrossover votes on a macd/signal crossover that happens on the far
// side of zero:
//
//	buy:  both lines below zero and macd crosses above signal
//	sell: both lines above zero and macd crosses below signal
//
// Flat accepts either trigger, long only the sell trigger, short only the
// buy trigger.
func MACDCrossover() Rule {
	return Rule{Name: "macd", Vote: macdVote}
}

func macdVote(snap *model.FeatureSnapshot, side model.Side) int {
	now, ok := snap.Last(0)
	if !ok {
		return 0
	}
	prev, ok := snap.Last(1)
	if !ok {
		return 0
	}

	buy := prev.MACD < 0 && prev.MACDSignal < 0 &&
		prev.MACD < prev.MACDSignal && now.MACD > now.MACDSignal
	sell := prev.MACD > 0 && prev.MACDSignal > 0 &&
		prev.MACD > prev.MACDSignal && now.MACD < now.MACDSignal

	switch side {
	case model.SideLong:
		if sell {
			return -1
		}
	case model.SideShort:
		if buy {
			return 1
		}
	default:
		if buy {
			return 1
		}
		if sell {
			return -1
		}
	}
	return 0
}
