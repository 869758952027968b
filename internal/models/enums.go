package models

// MarketRegime classifies prevailing market behavior
type MarketRegime string

const (
	RegimeTrendingBull   MarketRegime = "trending_bull"
	RegimeTrendingBear   MarketRegime = "trending_bear"
	RegimeMeanReverting  MarketRegime = "mean_reverting"
	RegimeHighVolatility MarketRegime = "high_volatility"
)

// Regimes lists all market regimes in declared order
var Regimes = []MarketRegime{
	RegimeTrendingBull,
	RegimeTrendingBear,
	RegimeMeanReverting,
	RegimeHighVolatility,
}

// Valid reports whether the regime is a known value
func (r MarketRegime) Valid() bool {
	switch r {
	case RegimeTrendingBull, RegimeTrendingBear, RegimeMeanReverting, RegimeHighVolatility:
		return true
	}
	return false
}

// SignalDirection represents the direction of a trading signal
type SignalDirection string

const (
	DirectionBuy     SignalDirection = "buy"
	DirectionSell    SignalDirection = "sell"
	DirectionHold    SignalDirection = "hold"
	DirectionAbstain SignalDirection = "abstain"
)

// Directions lists all signal directions in declared order.
// The coordinator tie-breaks weighted votes by this order.
var Directions = []SignalDirection{
	DirectionBuy,
	DirectionSell,
	DirectionHold,
	DirectionAbstain,
}

// Valid reports whether the direction is a known value
func (d SignalDirection) Valid() bool {
	switch d {
	case DirectionBuy, DirectionSell, DirectionHold, DirectionAbstain:
		return true
	}
	return false
}

// Executable reports whether the direction can be routed to a broker
func (d SignalDirection) Executable() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Timeframe represents a candle aggregation interval
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Valid reports whether the timeframe is a known value
func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d:
		return true
	}
	return false
}

// Intraday reports whether the timeframe is shorter than daily
func (t Timeframe) Intraday() bool {
	return t.Valid() && t != Timeframe1d
}

// AssetClass represents the instrument category
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassETF    AssetClass = "etf"
	AssetClassFX     AssetClass = "fx"
	AssetClassOther  AssetClass = "other"
)

// Valid reports whether the asset class is a known value
func (a AssetClass) Valid() bool {
	switch a {
	case AssetClassEquity, AssetClassCrypto, AssetClassETF, AssetClassFX, AssetClassOther:
		return true
	}
	return false
}

// AgentStatus represents the outcome of an agent task
type AgentStatus string

const (
	StatusSuccess AgentStatus = "success"
	StatusAbstain AgentStatus = "abstain"
	StatusError   AgentStatus = "error"
)

// Valid reports whether the status is a known value
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusAbstain, StatusError:
		return true
	}
	return false
}
