package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"concierge/pkg/model"
)

// RequestsClient talks to the allocation API on behalf of an establishment.
type RequestsClient struct {
	httpClient *HttpClient
}

func NewRequestsClient(baseURL, token string) *RequestsClient {
	return &RequestsClient{
		httpClient: NewHttpClient(baseURL, token),
	}
}

type ResponseBody struct {
	ProposedPrice *float64 `json:"proposed_price,omitempty"`
	ResponseNote  *string  `json:"response_note,omitempty"`
}

func (c *RequestsClient) List(ctx context.Context, status string, limit int, offset int64) ([]model.StepRequest, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.FormatInt(offset, 10))

	resp, err := c.httpClient.GET(ctx, "/api/v1/requests?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("list requests: %s", GetErrorMessage(resp))
	}

	var wrapper struct {
		Requests []model.StepRequest `json:"requests"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode request list: %w", err)
	}
	return wrapper.Requests, nil
}

func (c *RequestsClient) Get(ctx context.Context, id string) (*model.RequestDetail, error) {
	resp, err := c.httpClient.GET(ctx, "/api/v1/requests/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("get request: %s", GetErrorMessage(resp))
	}

	var detail model.RequestDetail
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return nil, fmt.Errorf("could not decode request: %w", err)
	}
	return &detail, nil
}

func (c *RequestsClient) Accept(ctx context.Context, id string, body ResponseBody, idempotencyKey string) error {
	return c.respond(ctx, id, "accept", body, idempotencyKey)
}

func (c *RequestsClient) Refuse(ctx context.Context, id string, note *string, idempotencyKey string) error {
	return c.respond(ctx, id, "refuse", ResponseBody{ResponseNote: note}, idempotencyKey)
}

func (c *RequestsClient) respond(ctx context.Context, id, action string, body ResponseBody, idempotencyKey string) error {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	resp, err := c.httpClient.POST(ctx, "/api/v1/requests/"+url.PathEscape(id)+"/"+action, body, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("%s request: %s (status %d)", action, GetErrorMessage(resp), resp.StatusCode)
	}
	return nil
}
