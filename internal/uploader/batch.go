package uploader

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectStore is the slice of the object-store client the uploader needs.
// *minio.Client satisfies it; tests substitute fakes with injected failure
// patterns.
type ObjectStore interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

// Item is one staged upload: local file, destination key, content type.
type Item struct {
	LocalPath   string
	Key         string
	ContentType string
}

// Outcome is the final per-item result after all retries.
type Outcome struct {
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// FailedItem is an item that still failed after the last retry round.
type FailedItem struct {
	Item
	LastError string
}

// RetryRound records one pass over the failed subset.
type RetryRound struct {
	Attempt   int `json:"attempt"`
	Retried   int `json:"retried"`
	Recovered int `json:"recovered"`
}

// Summary is the result of one batch upload. Success is only ever reported
// after the store confirmed the write; len(SuccessKeys)+len(FailedItems)
// always equals Total.
type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	Outcomes    []Outcome
	SuccessKeys []string
	FailedItems []FailedItem
	Retries     []RetryRound
}

// URLResult is one presigned-URL fetch outcome.
type URLResult struct {
	Key   string
	URL   string
	Error string
}

// URLSummary is the result of a batch URL fetch. URL fetches are not
// retried; a failure does not corrupt state.
type URLSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []URLResult
}

// BatchUploader pushes many independent objects to the store with bounded
// parallelism, isolating per-item failures and retrying the failed subset.
type BatchUploader struct {
	store      ObjectStore
	bucket     string
	workers    int
	maxRetries int
	retryDelay time.Duration
}

// New creates a BatchUploader. workers bounds the pool size; maxRetries
// bounds the number of retry rounds after the initial pass.
func New(store ObjectStore, bucket string, workers, maxRetries int, retryDelay time.Duration) *BatchUploader {
	if workers < 1 {
		workers = 1
	}
	return &BatchUploader{
		store:      store,
		bucket:     bucket,
		workers:    workers,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

type itemError struct {
	item Item
	err  error
}

// UploadBatch uploads all items through the worker pool, then sequentially
// retries the failed subset up to maxRetries times with retryDelay between
// rounds. Retry rounds never overlap.
func (u *BatchUploader) UploadBatch(ctx context.Context, items []Item) *Summary {
	summary := &Summary{Total: len(items)}
	if len(items) == 0 {
		return summary
	}

	attempts := make(map[string]int, len(items))
	lastErr := make(map[string]error)

	pending := items
	for round := 0; ; round++ {
		failed := u.runPool(ctx, pending, attempts, lastErr)

		if round > 0 {
			summary.Retries = append(summary.Retries, RetryRound{
				Attempt:   round,
				Retried:   len(pending),
				Recovered: len(pending) - len(failed),
			})
		}

		if len(failed) == 0 || round >= u.maxRetries || ctx.Err() != nil {
			pending = failed
			break
		}

		slog.Warn("retrying failed uploads",
			"round", round+1, "failed", len(failed), "delay", u.retryDelay)
		select {
		case <-ctx.Done():
			pending = failed
		case <-time.After(u.retryDelay):
			pending = failed
			continue
		}
		break
	}

	stillFailed := make(map[string]error, len(pending))
	for _, it := range pending {
		stillFailed[it.Key] = lastErr[it.Key]
	}

	for _, it := range items {
		out := Outcome{Key: it.Key, Attempts: attempts[it.Key]}
		if err, bad := stillFailed[it.Key]; bad {
			out.Error = err.Error()
			summary.FailedItems = append(summary.FailedItems, FailedItem{Item: it, LastError: err.Error()})
		} else {
			out.Success = true
			summary.SuccessKeys = append(summary.SuccessKeys, it.Key)
		}
		summary.Outcomes = append(summary.Outcomes, out)
	}
	summary.Succeeded = len(summary.SuccessKeys)
	summary.Failed = len(summary.FailedItems)
	return summary
}

// runPool dispatches one pass over items through a fixed-size pool and
// returns the items that failed this pass.
func (u *BatchUploader) runPool(ctx context.Context, items []Item, attempts map[string]int, lastErr map[string]error) []Item {
	jobs := make(chan Item)
	results := make(chan itemError, len(items))

	var wg sync.WaitGroup
	workers := u.workers
	if workers > len(items) {
		workers = len(items)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				if err := ctx.Err(); err != nil {
					results <- itemError{item: it, err: err}
					continue
				}
				_, err := u.store.FPutObject(ctx, u.bucket, it.Key, it.LocalPath,
					minio.PutObjectOptions{ContentType: it.ContentType})
				results <- itemError{item: it, err: err}
			}
		}()
	}

	for _, it := range items {
		jobs <- it
	}
	close(jobs)
	wg.Wait()
	close(results)

	var failed []Item
	for res := range results {
		attempts[res.item.Key]++
		if res.err != nil {
			lastErr[res.item.Key] = res.err
			failed = append(failed, res.item)
		} else {
			delete(lastErr, res.item.Key)
		}
	}
	return failed
}

// PresignBatch fetches presigned read URLs for keys with the same bounded
// pool, without retry.
func (u *BatchUploader) PresignBatch(ctx context.Context, keys []string, expiry time.Duration) *URLSummary {
	summary := &URLSummary{Total: len(keys)}
	if len(keys) == 0 {
		return summary
	}

	jobs := make(chan string)
	results := make(chan URLResult, len(keys))

	var wg sync.WaitGroup
	workers := u.workers
	if workers > len(keys) {
		workers = len(keys)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				if err := ctx.Err(); err != nil {
					results <- URLResult{Key: key, Error: err.Error()}
					continue
				}
				link, err := u.store.PresignedGetObject(ctx, u.bucket, key, expiry, nil)
				if err != nil {
					results <- URLResult{Key: key, Error: err.Error()}
					continue
				}
				results <- URLResult{Key: key, URL: link.String()}
			}
		}()
	}

	for _, key := range keys {
		jobs <- key
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		if res.Error == "" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}
	return summary
}
