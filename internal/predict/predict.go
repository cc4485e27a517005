// Package predict is a toy next-day price heuristic built from moving
// averages, momentum, volatility and a least-squares trend line. It backs
// the /predictions demo endpoint and makes no accuracy claim.
package predict

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// DefaultLookback is the number of trailing prices analysed.
const DefaultLookback = 20

// Trend labels.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// Signal is a trading signal derived from a prediction.
type Signal string

const (
	StrongBuy  Signal = "STRONG_BUY"
	Buy        Signal = "BUY"
	Hold       Signal = "HOLD"
	Sell       Signal = "SELL"
	StrongSell Signal = "STRONG_SELL"
)

// Prediction is the heuristic output. Every float is rounded to cents.
type Prediction struct {
	PredictedPrice float64 `json:"predicted_price"`
	Confidence     float64 `json:"confidence"`
	Trend          string  `json:"trend"`
	Momentum       float64 `json:"momentum"`
	Volatility     float64 `json:"volatility"`
	Slope          float64 `json:"slope"`
	Support        float64 `json:"support"`
	Resistance     float64 `json:"resistance"`
}

// Predictor holds the analysis window.
type Predictor struct {
	Lookback int
}

// New creates a predictor; a non-positive lookback uses DefaultLookback.
func New(lookback int) *Predictor {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Predictor{Lookback: lookback}
}

// PredictNextPrice analyses prices (oldest first). Fewer than three prices
// yields a neutral prediction at current with a ±5% band.
func (p *Predictor) PredictNextPrice(prices []float64, current float64) Prediction {
	if len(prices) < 3 {
		return Prediction{
			PredictedPrice: current,
			Trend:          TrendNeutral,
			Support:        current * 0.95,
			Resistance:     current * 1.05,
		}
	}
	if len(prices) > p.Lookback {
		prices = prices[len(prices)-p.Lookback:]
	}
	n := len(prices)
	last := prices[n-1]

	ma5 := mean(tail(prices, 5))
	ma10 := mean(tail(prices, 10))
	ma20 := mean(prices)

	trend, strength := TrendNeutral, 0.0
	switch {
	case ma5 > ma10 && ma10 > ma20:
		trend, strength = TrendUp, 1.0
	case ma5 < ma10 && ma10 < ma20:
		trend, strength = TrendDown, -1.0
	}

	momentum := 0.0
	if n >= 5 {
		ref := prices[n-5]
		momentum = math.Tanh((last - ref) / ref * 10)
	}

	returns := make([]float64, n-1)
	for i := 1; i < n; i++ {
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}
	volatility := stddev(returns) * 100

	slope := linearSlope(prices)

	recent := tail(prices, 10)
	support := minOf(recent) * 0.98
	resistance := maxOf(recent) * 1.02

	confidence := math.Abs(strength)*0.4 + math.Max(0, 1-volatility/5)*0.3 + math.Abs(momentum)*0.3
	confidence = math.Min(1, math.Max(0, confidence))

	maPrediction := ma5*0.7 + ma10*0.3
	trendPrediction := last * (1 + strength*0.02)
	predicted := math.Max(0.01, maPrediction*0.6+trendPrediction*0.4)

	return Prediction{
		PredictedPrice: round2(predicted),
		Confidence:     round2(confidence),
		Trend:          trend,
		Momentum:       round2(momentum),
		Volatility:     round2(volatility),
		Slope:          round2(slope),
		Support:        round2(support),
		Resistance:     round2(resistance),
	}
}

// ClassifySignal maps a prediction to a signal.
func ClassifySignal(pr Prediction) Signal {
	switch {
	case pr.Trend == TrendUp && pr.Confidence > 0.5 && pr.Momentum > 0.1:
		return StrongBuy
	case pr.Trend == TrendUp && pr.Confidence > 0.3:
		return Buy
	case pr.Trend == TrendDown && pr.Confidence > 0.5 && pr.Momentum < -0.1:
		return StrongSell
	case pr.Trend == TrendDown && pr.Confidence > 0.3:
		return Sell
	}
	return Hold
}

// RiskReward describes a trade from current price to the predicted target
// with the support level as stop.
type RiskReward struct {
	EntryPrice      float64 `json:"entry_price"`
	StopLoss        float64 `json:"stop_loss"`
	TargetPrice     float64 `json:"target_price"`
	RiskDollars     float64 `json:"risk_dollars"`
	RiskPercent     float64 `json:"risk_percent"`
	RewardDollars   float64 `json:"reward_dollars"`
	RewardPercent   float64 `json:"reward_percent"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// CalculateRiskReward targets the larger of the prediction and current+2%.
func CalculateRiskReward(current float64, pr Prediction) RiskReward {
	stop := pr.Support
	risk := current - stop
	target := math.Max(pr.PredictedPrice, current*1.02)
	reward := target - current

	var riskPct, rewardPct, ratio float64
	if current > 0 {
		riskPct = risk / current * 100
		rewardPct = reward / current * 100
	}
	if risk > 0 {
		ratio = reward / risk
	}
	return RiskReward{
		EntryPrice:      current,
		StopLoss:        stop,
		TargetPrice:     target,
		RiskDollars:     round2(risk),
		RiskPercent:     round2(riskPct),
		RewardDollars:   round2(reward),
		RewardPercent:   round2(rewardPct),
		RiskRewardRatio: round2(ratio),
	}
}

// SyntheticPrices walks days steps of geometric noise from start using rng.
// Prices never drop below 0.01. The result has days+1 entries.
func SyntheticPrices(rng *rand.Rand, start float64, days int, volatility, drift float64) []float64 {
	prices := make([]float64, 0, days+1)
	prices = append(prices, start)
	for i := 0; i < days; i++ {
		change := drift + volatility*rng.NormFloat64()
		prices = append(prices, math.Max(prices[len(prices)-1]*(1+change), 0.01))
	}
	return prices
}

// Sample is one demo prediction.
type Sample struct {
	Ticker       string     `json:"ticker"`
	CurrentPrice float64    `json:"current_price"`
	Mentions     int        `json:"mentions"`
	Sentiment    float64    `json:"sentiment"`
	Prediction   Prediction `json:"prediction"`
	Signal       Signal     `json:"signal"`
	RiskReward   RiskReward `json:"risk_reward"`
}

type sampleTicker struct {
	ticker     string
	start      float64
	volatility float64
	current    float64
	mentions   int
	sentiment  float64
}

var sampleTickers = []sampleTicker{
	{"ABCD", 3.50, 0.03, 3.65, 45, 0.72},
	{"WXYZ", 2.10, 0.04, 2.15, 38, 0.65},
	{"TECH", 4.80, 0.02, 4.95, 52, 0.80},
}

// SamplePredictions builds the demo set. Each ticker's price history is
// seeded from the ticker so the output is reproducible.
func SamplePredictions() map[string]Sample {
	p := New(DefaultLookback)
	out := make(map[string]Sample, len(sampleTickers))
	for _, s := range sampleTickers {
		h := fnv.New64a()
		h.Write([]byte(s.ticker))
		rng := rand.New(rand.NewPCG(h.Sum64(), 0))

		prices := SyntheticPrices(rng, s.start, 20, s.volatility, 0.001)
		pr := p.PredictNextPrice(prices, s.current)
		out[s.ticker] = Sample{
			Ticker:       s.ticker,
			CurrentPrice: s.current,
			Mentions:     s.mentions,
			Sentiment:    s.sentiment,
			Prediction:   pr,
			Signal:       ClassifySignal(pr),
			RiskReward:   CalculateRiskReward(s.current, pr),
		}
	}
	return out
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// linearSlope fits y = a + b·x over x = 0..n-1 and returns b.
func linearSlope(ys []float64) float64 {
	n := float64(len(ys))
	xMean := (n - 1) / 2
	yMean := mean(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
