package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"breakout-trader/internal/model"
)

// ErrUnsupportedOrderType is returned for order types the v2 order/create
// endpoint does not accept.
var ErrUnsupportedOrderType = errors.New("order type not supported by this venue client")

var _ model.Gateway = (*Client)(nil)

// FetchBalance returns the available balance of asset. An empty asset means
// the symbol's settlement coin.
func (c *Client) FetchBalance(ctx context.Context, asset string) (float64, error) {
	if asset == "" {
		asset = c.Coin()
	}
	var res map[string]walletRecord
	err := c.doRequest(ctx, http.MethodGet, "private.wallet.balance", map[string]any{"coin": asset}, true, &res)
	if err != nil {
		return 0, model.NewDataFetchError("fetch_balance", err)
	}
	w, ok := res[asset]
	if !ok {
		return 0, model.NewDataFetchError("fetch_balance", fmt.Errorf("no wallet for %s", asset))
	}
	return float64(w.AvailableBalance), nil
}

// FetchBars returns one page of up to PageLimit bars starting at from.
func (c *Client) FetchBars(ctx context.Context, interval string, from time.Time) ([]model.Bar, error) {
	params := map[string]any{
		"symbol":   c.symbol,
		"interval": interval,
		"from":     from.Unix(),
		"limit":    c.pageLimit,
	}
	var recs []klineRecord
	if err := c.doRequest(ctx, http.MethodGet, "public.kline.list", params, false, &recs); err != nil {
		return nil, model.NewDataFetchError("fetch_bars", err)
	}

	bars := make([]model.Bar, 0, len(recs))
	for i, r := range recs {
		b, err := r.bar()
		if err != nil {
			return nil, model.NewDataFetchError("fetch_bars", fmt.Errorf("record %d: %w", i, err))
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// FetchPosition returns the current position for symbol.
func (c *Client) FetchPosition(ctx context.Context, symbol string) (model.Position, error) {
	var rec positionRecord
	if err := c.doRequest(ctx, http.MethodGet, "private.position.list", map[string]any{"symbol": symbol}, true, &rec); err != nil {
		return model.Position{}, model.NewDataFetchError("fetch_position", err)
	}
	pos, err := rec.position()
	if err != nil {
		return model.Position{}, model.NewDataFetchError("fetch_position", err)
	}
	if pos.Symbol == "" {
		pos.Symbol = symbol
	}
	return pos, nil
}

// openOrderStatuses covers orders accepted but not yet resting as well as
// partially filled ones.
const openOrderStatuses = "Created,New,PartiallyFilled"

// FetchOpenOrders lists orders that are still working at the venue.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	var res orderListResult
	params := map[string]any{"symbol": symbol, "order_status": openOrderStatuses}
	if err := c.doRequest(ctx, http.MethodGet, "private.order.list", params, true, &res); err != nil {
		return nil, model.NewDataFetchError("fetch_open_orders", err)
	}
	orders := make([]model.Order, 0, len(res.Data))
	for _, r := range res.Data {
		orders = append(orders, r.order())
	}
	return orders, nil
}

// SubmitOrder places a good-till-cancel order for the client's symbol.
func (c *Client) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderAck, error) {
	if err := intent.Validate(); err != nil {
		return model.OrderAck{}, &model.OrderSubmissionError{Intent: intent, Err: permanentError{err}}
	}
	if intent.Type == model.OrderStop {
		return model.OrderAck{}, &model.OrderSubmissionError{Intent: intent, Err: permanentError{ErrUnsupportedOrderType}}
	}

	params := map[string]any{
		"symbol":        c.symbol,
		"side":          string(intent.Side),
		"order_type":    string(intent.Type),
		"qty":           intent.Qty,
		"time_in_force": "GoodTillCancel",
	}
	if intent.LinkID != "" {
		params["order_link_id"] = intent.LinkID
	}
	if intent.Price != nil {
		params["price"] = *intent.Price
	}

	var rec orderAckRecord
	if err := c.doRequest(ctx, http.MethodPost, "private.order.create", params, true, &rec); err != nil {
		return model.OrderAck{}, err
	}
	return model.OrderAck{OrderID: rec.OrderID, LinkID: rec.OrderLinkID, Status: rec.OrderStatus}, nil
}

// CancelAllOrders cancels every active order for symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	return c.doRequest(ctx, http.MethodPost, "private.order.cancel_all", map[string]any{"symbol": symbol}, true, nil)
}
