package backend

import (
	"context"
	"fmt"

	"medibot/internal/domain"
)

type prescriptionRequest struct {
	Phone    string `json:"phone"`
	MediaURL string `json:"media_url"`
	Caption  string `json:"caption,omitempty"`
}

type prescriptionResponse struct {
	ReferenceID string `json:"reference_id"`
	ID          string `json:"id"`
}

// Submit posts a prescription to the intake API and returns its reference id.
func (c *Client) Submit(ctx context.Context, phone, mediaRef, caption string) (string, error) {
	data, err := c.do(ctx, "POST", "/prescriptions", nil, prescriptionRequest{
		Phone:    phone,
		MediaURL: mediaRef,
		Caption:  caption,
	})
	if err != nil {
		return "", fmt.Errorf("submit prescription: %w", err)
	}

	var resp prescriptionResponse
	if err := decode(data, &resp, "prescription response"); err != nil {
		return "", err
	}
	ref := resp.ReferenceID
	if ref == "" {
		ref = resp.ID
	}
	if ref == "" {
		return "", fmt.Errorf("submit prescription: missing reference: %w", domain.ErrDecode)
	}
	return ref, nil
}

var (
	_ domain.SearchBackend      = (*Client)(nil)
	_ domain.OrderBackend       = (*Client)(nil)
	_ domain.PrescriptionIntake = (*Client)(nil)
)
