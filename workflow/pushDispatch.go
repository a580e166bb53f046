package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/shop_backend/config"
	"bitbucket.org/mmdatafocus/shop_backend/models"
	"bitbucket.org/mmdatafocus/shop_backend/utils"
)

const defaultPushGatewayURL = "https://exp.host/--/api/v2/push/send"

// PushMessage is one item in a gateway batch request.
type PushMessage struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// PushTicket is one per-message result, positionally correlated with the
// request batch.
type PushTicket struct {
	Status  string `json:"status"` // "ok" | "error"
	Id      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details,omitempty"`
}

type pushGatewayResponse struct {
	Data []PushTicket `json:"data"`
}

// PushGateway sends one batch of push messages.
type PushGateway interface {
	SendBatch(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
}

// RestyPushGateway talks to an Expo-compatible push endpoint. The call is
// bounded to ~8 seconds; the dispatcher swallows whatever goes wrong.
type RestyPushGateway struct {
	client *resty.Client
}

func NewRestyPushGateway() *RestyPushGateway {
	url := os.Getenv("PUSH_GATEWAY_URL")
	if url == "" {
		url = defaultPushGatewayURL
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(url).
		SetHeader("Content-Type", "application/json").
		SetTimeout(8 * time.Second)
	if token := os.Getenv("PUSH_GATEWAY_TOKEN"); token != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	return &RestyPushGateway{client: restyClient}
}

func (g *RestyPushGateway) SendBatch(ctx context.Context, messages []PushMessage) ([]PushTicket, error) {
	result := new(pushGatewayResponse)

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(messages).
		SetResult(result).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("send push batch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("push gateway returned %s: %s", resp.Status(), resp.String())
	}
	return result.Data, nil
}

// isPermanentDeliveryFailure reports tickets whose token will never deliver
// again. Those tokens get deregistered; transient errors are left alone.
func isPermanentDeliveryFailure(t PushTicket) bool {
	if t.Status != "error" {
		return false
	}
	switch t.Details.Error {
	case "DeviceNotRegistered", "InvalidCredentials":
		return true
	}
	return false
}

// PushDispatcher sends order-status pushes to the owning user's devices.
// It runs decoupled from the triggering transaction; every failure here is
// logged and swallowed, never propagated.
type PushDispatcher struct {
	Logger  *logrus.Logger
	Gateway PushGateway
	App     string
}

func NewPushDispatcher(logger *logrus.Logger) *PushDispatcher {
	return &PushDispatcher{
		Logger:  logger,
		Gateway: NewRestyPushGateway(),
		App:     models.PushAppCustomerMobile,
	}
}

// DispatchOrderUpdate resolves the user's tokens and batch-sends. No tokens
// is a no-op. Tickets come back positionally correlated with the tokens;
// permanent failures deregister that specific token.
func (d *PushDispatcher) DispatchOrderUpdate(ctx context.Context, ev OrderEvent) {
	if ev.Order.UserId == nil {
		return
	}

	tokens, err := models.TokensFor(ctx, *ev.Order.UserId, d.App)
	if err != nil {
		config.LogWarn(d.Logger, "pushDispatch.go", "DispatchOrderUpdate", "resolve tokens", ev.Order.ID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	payload := BuildOrderEventPayload(ev)
	messages := make([]PushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, PushMessage{
			To:    token,
			Title: "Order update",
			Body:  payload.Message,
			Data: map[string]any{
				"order_id": ev.Order.ID,
				"status":   string(ev.Order.Status),
			},
			Sound:    "default",
			Priority: "high",
		})
	}

	tickets, err := d.Gateway.SendBatch(ctx, messages)
	if err != nil {
		config.LogWarn(d.Logger, "pushDispatch.go", "DispatchOrderUpdate", "gateway send", ev.Order.ID, err)
		return
	}

	for i, ticket := range tickets {
		if i >= len(tokens) {
			break
		}
		if !isPermanentDeliveryFailure(ticket) {
			continue
		}
		if err := models.RemovePushToken(ctx, tokens[i]); err != nil {
			config.LogWarn(d.Logger, "pushDispatch.go", "DispatchOrderUpdate", "remove dead token", tokens[i], err)
		}
	}
}

// PushDispatchSubscriber adapts the dispatcher to the event bus. Only status
// updates trigger pushes, and the work runs on a detached context so it can
// never block or roll back the order mutation that emitted the event.
func PushDispatchSubscriber(d *PushDispatcher) func(ctx context.Context, ev OrderEvent) {
	return func(ctx context.Context, ev OrderEvent) {
		if ev.Kind != OrderEventStatusUpdated {
			return
		}
		if ev.Order.UserId == nil {
			return
		}
		detached := context.Background()
		if businessId, ok := utils.GetBusinessIdFromContext(ctx); ok {
			detached = utils.SetBusinessIdInContext(detached, businessId)
		}
		go d.DispatchOrderUpdate(detached, ev)
	}
}
