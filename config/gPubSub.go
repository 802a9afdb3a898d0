package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

// ShiftSyncMessage is the payload published for one closed shift. The
// accounting consumer on the other side of the topic owns the actual
// bookkeeping; this side only guarantees it is dispatched at most once per
// (shift_date, shift_type, venue).
type ShiftSyncMessage struct {
	SyncRecordId   int             `json:"sync_record_id"`
	ShiftId        int             `json:"shift_id"`
	ShiftDate      string          `json:"shift_date"`
	ShiftType      string          `json:"shift_type"`
	VenueId        int             `json:"venue_id"`
	VenueName      string          `json:"venue_name"`
	CashRevenue    decimal.Decimal `json:"cash_revenue"`
	CardRevenue    decimal.Decimal `json:"card_revenue"`
	QrRevenue      decimal.Decimal `json:"qr_revenue"`
	AltCardRevenue decimal.Decimal `json:"alt_card_revenue"`
	OfficialDelta  decimal.Decimal `json:"official_delta"`
	BoxDelta       decimal.Decimal `json:"box_delta"`
	ConfirmedBy    string          `json:"confirmed_by"`
	ClosedAt       time.Time       `json:"closed_at"`
	CorrelationId  string          `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if
// needed. It uses Application Default Credentials unless
// PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// PublishShiftSyncWithResult publishes one sync message to the accounting
// topic and returns the Pub/Sub server-assigned message ID.
func PublishShiftSyncWithResult(ctx context.Context, msg ShiftSyncMessage) (string, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	topicName := os.Getenv("SHIFT_SYNC_TOPIC")
	if topicName == "" {
		return "", errors.New("SHIFT_SYNC_TOPIC is required")
	}

	t := client.Topic(topicName)
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
	})

	id, err := result.Get(ctx)
	return id, err
}
