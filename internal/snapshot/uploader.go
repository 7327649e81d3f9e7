package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"albion-crafter/internal/services/albion"

	"github.com/go-resty/resty/v2"
)

// DefaultBatchSize matches the bulk insert size of the receiving store.
const DefaultBatchSize = 200

// Uploader posts snapshots in batches, retrying with the same policy as the
// price reads.
type Uploader struct {
	http      *resty.Client
	baseURL   string
	policy    albion.RetryPolicy
	batchSize int
	logger    *log.Logger
}

func NewUploader(baseURL string, policy albion.RetryPolicy, timeout time.Duration) *Uploader {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")

	return &Uploader{
		http:      client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		policy:    policy,
		batchSize: DefaultBatchSize,
		logger:    log.New(os.Stderr, "[Snapshot] ", log.LstdFlags),
	}
}

// SetLogger replaces the default stderr logger.
func (u *Uploader) SetLogger(l *log.Logger) {
	if l != nil {
		u.logger = l
	}
}

// Upload sends every snapshot and returns how many the server accepted. On
// failure the count covers the batches that succeeded before it.
func (u *Uploader) Upload(ctx context.Context, snaps []Snapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	url := u.baseURL + "/snapshots/bulk"
	inserted := 0
	for start := 0; start < len(snaps); start += u.batchSize {
		end := start + u.batchSize
		if end > len(snaps) {
			end = len(snaps)
		}
		batch := snaps[start:end]

		resp, err := u.policy.Do(ctx, func(ctx context.Context) (*resty.Response, error) {
			return u.http.R().SetContext(ctx).SetBody(batch).Post(url)
		})
		if err != nil {
			return inserted, fmt.Errorf("upload batch %d-%d: %w", start, end, err)
		}
		if !resp.IsSuccess() {
			return inserted, &albion.StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
		}

		var body BulkResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return inserted, fmt.Errorf("%w: %v", albion.ErrMalformedResponse, err)
		}
		if !body.OK {
			return inserted, fmt.Errorf("snapshot service rejected batch %d-%d: %s", start, end, body.Error)
		}
		inserted += body.Inserted
	}

	u.logger.Printf("✓ uploaded %d snapshots (%d accepted)", len(snaps), inserted)
	return inserted, nil
}
