package domain

// Candidate is a tradeable asset returned by the discovery feed.
// Fields other than Asset and Price are optional; zero means unknown.
type Candidate struct {
	Asset  string  `json:"asset"` // token mint address
	Symbol string  `json:"symbol,omitempty"`
	Price  float64 `json:"price"`

	Volume24h      float64 `json:"volume_24h,omitempty"`
	AvgVolume7d    float64 `json:"avg_volume_7d,omitempty"`
	LiquidityUSD   float64 `json:"liquidity_usd,omitempty"`
	MarketCap      float64 `json:"market_cap,omitempty"`
	Holders        int     `json:"holders,omitempty"`
	PriceChange1h  float64 `json:"price_change_1h,omitempty"` // percent
	PriceChange6h  float64 `json:"price_change_6h,omitempty"` // percent
	PriceChange24h float64 `json:"price_change_24h,omitempty"` // percent

	// RSI is optional; when nil the scorer derives it from Closes.
	RSI    *float64  `json:"rsi,omitempty"`
	Closes []float64 `json:"closes,omitempty"`

	ObservedAt int64 `json:"observed_at,omitempty"` // ms
}

// PricePoint is one observed price for an asset.
// Corresponds to price_snapshots table in ClickHouse.
type PricePoint struct {
	Asset       string
	TimestampMs int64
	Price       float64
	Volume      float64
	Source      string // "discovery" | "monitor"
}
