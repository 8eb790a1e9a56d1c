package marketstream

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// TR IDs for the two realtime channels this client understands. Other
// tr_ids are logged and dropped rather than treated as an error, matching
// the venue's own "unknown control frame" posture.
const (
	TrIDTrade     = "H0STCNT0"
	TrIDOrderBook = "H0STASP0"
)

const orderBookLevels = 10

// handleFrame parses one raw server frame and emits zero or one StreamEvent.
// Frames are pipe-delimited: "op|tr_id|seq|payload". A leading op byte of
// "0" carries market data; anything else is a control/ack frame, logged at
// debug and dropped. Malformed or short frames are logged at warn and
// dropped, never propagated as an error — a single bad frame must not take
// down the stream.
func (c *Client) handleFrame(raw []byte) {
	text := string(raw)
	parts := strings.Split(text, "|")
	if len(parts) < 4 {
		c.logger.Debug("control frame", zap.String("frame", text))
		return
	}
	if parts[0] != "0" {
		c.logger.Debug("non-data frame", zap.String("op", parts[0]), zap.String("frame", text))
		return
	}

	trID := parts[1]
	payload := parts[3]

	switch trID {
	case TrIDTrade:
		trade, ok := parseTrade(payload)
		if !ok {
			c.logger.Warn("dropped malformed trade frame", zap.String("payload", payload))
			return
		}
		c.emit(StreamEvent{Kind: EventTrade, Trade: trade})

	case TrIDOrderBook:
		update, ok := parseOrderBook(payload)
		if !ok {
			c.logger.Warn("dropped malformed order book frame", zap.String("payload", payload))
			return
		}
		c.emit(StreamEvent{Kind: EventOrderBook, OrderBook: update})

	default:
		c.logger.Debug("unknown tr_id", zap.String("trId", trID))
	}
}

// parseTrade parses a caret-delimited trade payload. Field layout follows
// the venue's trade channel: symbol^time^price^sign^change^changeRate^...^
// volume(12)^accVolume(13)^...
func parseTrade(payload string) (Trade, bool) {
	fields := strings.Split(payload, "^")
	if len(fields) < 14 {
		return Trade{}, false
	}
	return Trade{
		Symbol:     fields[0],
		TradeTime:  fields[1],
		Price:      parseFloatOrZero(fields[2]),
		Sign:       fields[3],
		Change:     parseFloatOrZero(fields[4]),
		ChangeRate: parseFloatOrZero(fields[5]),
		Volume:     parseIntOrZero(fields[12]),
		AccVolume:  parseIntOrZero(fields[13]),
	}, true
}

// parseOrderBook parses a caret-delimited order book payload: symbol^time^
// then 10 (ask price, ask volume) pairs starting at field 3, followed by 10
// (bid price, bid volume) pairs starting at field 23.
func parseOrderBook(payload string) (OrderBookUpdate, bool) {
	fields := strings.Split(payload, "^")
	if len(fields) < 23+orderBookLevels*2 {
		return OrderBookUpdate{}, false
	}

	update := OrderBookUpdate{
		Symbol:        fields[0],
		OrderbookTime: fields[1],
		AskPrices:     make([]float64, 0, orderBookLevels),
		AskVolumes:    make([]int64, 0, orderBookLevels),
		BidPrices:     make([]float64, 0, orderBookLevels),
		BidVolumes:    make([]int64, 0, orderBookLevels),
	}

	for i := 0; i < orderBookLevels; i++ {
		askPriceIdx := 3 + i*2
		askVolIdx := 4 + i*2
		bidPriceIdx := 23 + i*2
		bidVolIdx := 24 + i*2

		if askVolIdx < len(fields) {
			update.AskPrices = append(update.AskPrices, parseFloatOrZero(fields[askPriceIdx]))
			update.AskVolumes = append(update.AskVolumes, parseIntOrZero(fields[askVolIdx]))
		}
		if bidVolIdx < len(fields) {
			update.BidPrices = append(update.BidPrices, parseFloatOrZero(fields[bidPriceIdx]))
			update.BidVolumes = append(update.BidVolumes, parseIntOrZero(fields[bidVolIdx]))
		}
	}

	return update, true
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntOrZero(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
