package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"medibot/internal/domain"
)

// envelope is the optional wrapper around backend payloads.
type envelope struct {
	Success *bool           `json:"success"`
	Order   json.RawMessage `json:"order"`
	Orders  json.RawMessage `json:"orders"`
}

// TrackByID fetches one order scoped to the sender's phone. The order may arrive bare or
// wrapped as {"order": {...}}; {"success": false} means not found.
func (c *Client) TrackByID(ctx context.Context, id, phone string) (domain.OrderRecord, error) {
	data, err := c.do(ctx, "GET", "/orders/track/"+url.PathEscape(id), url.Values{"phone": {phone}}, nil)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("track order %s: %w", id, err)
	}

	var env envelope
	if err := decode(data, &env, "track response"); err != nil {
		return domain.OrderRecord{}, err
	}
	if env.Success != nil && !*env.Success {
		return domain.OrderRecord{}, fmt.Errorf("track order %s: %w", id, domain.ErrNotFound)
	}
	if present(env.Order) {
		data = env.Order
	}

	var rec domain.OrderRecord
	if err := decode(data, &rec, "order"); err != nil {
		return domain.OrderRecord{}, err
	}
	return rec, nil
}

// HistoryByPhone fetches the sender's most recent orders, newest first.
func (c *Client) HistoryByPhone(ctx context.Context, phone string) ([]domain.OrderRecord, error) {
	data, err := c.do(ctx, "GET", "/orders/history", url.Values{"phone": {phone}}, nil)
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}

	var env envelope
	if err := decode(data, &env, "history response"); err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("order history: %w", domain.ErrBackendUnavailable)
	}
	if !present(env.Orders) {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := decode(env.Orders, &raws, "orders"); err != nil {
		return nil, err
	}
	recs := make([]domain.OrderRecord, 0, len(raws))
	for i, raw := range raws {
		var rec domain.OrderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			c.logger.Warn("skipping undecodable order", "index", i, "err", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
