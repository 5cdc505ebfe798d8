// FILE: broker_kite.go
// Package main – Kite Connect HTTP client (quotes + regular orders).
//
// Auth is the standard Kite scheme: `Authorization: token key:access` plus
// `X-Kite-Version: 3`. Quotes come from /quote/ohlc, whose ohlc.close field
// is the previous session's close. Orders go to /orders/regular as CNC
// market orders; after placement we read the order history once to pick up
// the broker-reported average fill price (best effort — a zero price falls
// back to the engine's reference price upstream).
//
// Rate limits: the engine polls at a fixed cadence with bounded fanout, and
// the core treats 429s like any other transient fetch error.

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const kiteBaseURL = "https://api.kite.trade"

// KiteBroker talks to the Kite Connect REST API.
type KiteBroker struct {
	client   *resty.Client
	exchange string
}

// NewKiteBroker builds a client from API credentials. The access token is
// session-scoped; refreshing it is an operator concern, not the engine's.
func NewKiteBroker(apiKey, accessToken string) *KiteBroker {
	client := resty.New().
		SetBaseURL(kiteBaseURL).
		SetTimeout(10*time.Second).
		SetHeader("X-Kite-Version", "3").
		SetHeader("Authorization", "token "+apiKey+":"+accessToken)
	return &KiteBroker{client: client, exchange: "NSE"}
}

func (k *KiteBroker) Name() string { return "kite" }

type kiteEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

type kiteOHLCResp struct {
	kiteEnvelope
	Data map[string]struct {
		LastPrice float64 `json:"last_price"`
		OHLC      struct {
			Open  float64 `json:"open"`
			High  float64 `json:"high"`
			Low   float64 `json:"low"`
			Close float64 `json:"close"`
		} `json:"ohlc"`
	} `json:"data"`
}

// FetchQuote returns last price and previous close for an NSE symbol.
func (k *KiteBroker) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	key := k.exchange + ":" + symbol
	var out kiteOHLCResp
	resp, err := k.client.R().
		SetContext(ctx).
		SetQueryParam("i", key).
		SetResult(&out).
		SetError(&out.kiteEnvelope).
		Get("/quote/ohlc")
	if err != nil {
		return Quote{}, fmt.Errorf("kite quote %s: %w", symbol, err)
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("kite quote %s: %s (%s)", symbol, out.Message, resp.Status())
	}
	d, ok := out.Data[key]
	if !ok {
		return Quote{}, fmt.Errorf("kite quote %s: no data in response", symbol)
	}
	return Quote{
		Symbol:    symbol,
		LastPrice: d.LastPrice,
		PrevClose: d.OHLC.Close,
		Time:      time.Now().UTC(),
	}, nil
}

type kiteOrderResp struct {
	kiteEnvelope
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

type kiteOrderHistoryResp struct {
	kiteEnvelope
	Data []struct {
		Status       string  `json:"status"`
		AveragePrice float64 `json:"average_price"`
	} `json:"data"`
}

// PlaceMarketOrder submits a CNC market order and returns the broker ref
// with the reported average fill price when available.
func (k *KiteBroker) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty int) (*PlacedOrder, error) {
	var out kiteOrderResp
	resp, err := k.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"tradingsymbol":    symbol,
			"exchange":         k.exchange,
			"transaction_type": string(side),
			"order_type":       "MARKET",
			"quantity":         strconv.Itoa(qty),
			"product":          "CNC",
			"validity":         "DAY",
		}).
		SetResult(&out).
		SetError(&out.kiteEnvelope).
		Post("/orders/regular")
	if err != nil {
		return nil, fmt.Errorf("kite order %s %s: %w", side, symbol, err)
	}
	if resp.IsError() {
		// Input/validation failures are rejections; everything else is an error.
		if out.ErrorType == "InputException" || out.ErrorType == "OrderException" {
			return nil, &OrderRejectedError{Reason: out.Message}
		}
		return nil, fmt.Errorf("kite order %s %s: %s (%s)", side, symbol, out.Message, resp.Status())
	}

	placed := &PlacedOrder{
		Ref:        out.Data.OrderID,
		Symbol:     symbol,
		Side:       side,
		Qty:        qty,
		CreateTime: time.Now().UTC(),
	}
	if px := k.fetchAveragePrice(ctx, out.Data.OrderID); px > 0 {
		placed.Price = px
	}
	return placed, nil
}

// fetchAveragePrice reads the order history once for the reported fill
// price. Best effort; zero means "not available yet".
func (k *KiteBroker) fetchAveragePrice(ctx context.Context, orderID string) float64 {
	var out kiteOrderHistoryResp
	resp, err := k.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/orders/" + orderID)
	if err != nil || resp.IsError() || len(out.Data) == 0 {
		return 0
	}
	latest := out.Data[len(out.Data)-1]
	if latest.Status == "COMPLETE" {
		return latest.AveragePrice
	}
	return 0
}
