package strategy

import "breakout-trader/internal/model"

// DonchianBreakout votes +1 when the latest close breaks above the previous
// row's channel high, and -1 when it breaks below the previous row's channel
// low. A vote in the direction of an already-held position is suppressed.
//
// The previous row's extreme includes that row's own high/low, so the
// channel the latest close is tested against ends one bar before it.
func DonchianBreakout() Rule {
	return Rule{Name: "donchian", Vote: donchianVote}
}

func donchianVote(snap *model.FeatureSnapshot, side model.Side) int {
	now, ok := snap.Last(0)
	if !ok {
		return 0
	}
	prev, ok := snap.Last(1)
	if !ok {
		return 0
	}

	vote := 0
	if now.Close > prev.MaxPrice && side != model.SideLong {
		vote++
	}
	if now.Close < prev.MinPrice && side != model.SideShort {
		vote--
	}
	return vote
}
