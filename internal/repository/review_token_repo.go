package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingReview holds the full decision payload awaiting OTP confirmation.
// It lives outside the assignment so unconfirmed decisions never touch the
// permanent history.
type PendingReview struct {
	AssignmentID      uint      `json:"assignment_id"`
	Decision          string    `json:"decision"`
	Remark            string    `json:"remark"`
	Signature         string    `json:"signature"`
	SignatureImageURL string    `json:"signature_image_url"`
	Code              string    `json:"code"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// ReviewTokenRepository stores at most one pending review confirmation per
// actor. Put overwrites any existing entry (last write wins); entries are
// evicted by TTL independently of the stored expiry.
type ReviewTokenRepository interface {
	Put(ctx context.Context, actorID uint, pending PendingReview, ttl time.Duration) error
	Get(ctx context.Context, actorID uint) (PendingReview, bool, error)
	Delete(ctx context.Context, actorID uint) error
}

type reviewTokenRepository struct {
	client *redis.Client
}

// NewReviewTokenRepository constructs a redis-backed confirmation token store.
func NewReviewTokenRepository(client *redis.Client) ReviewTokenRepository {
	return &reviewTokenRepository{client: client}
}

func reviewTokenKey(actorID uint) string {
	return fmt.Sprintf("review:pending:%d", actorID)
}

func (r *reviewTokenRepository) Put(ctx context.Context, actorID uint, pending PendingReview, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, reviewTokenKey(actorID), payload, ttl).Err()
}

func (r *reviewTokenRepository) Get(ctx context.Context, actorID uint) (PendingReview, bool, error) {
	payload, err := r.client.Get(ctx, reviewTokenKey(actorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PendingReview{}, false, nil
		}
		return PendingReview{}, false, err
	}

	var pending PendingReview
	if err := json.Unmarshal([]byte(payload), &pending); err != nil {
		return PendingReview{}, false, err
	}
	return pending, true, nil
}

func (r *reviewTokenRepository) Delete(ctx context.Context, actorID uint) error {
	return r.client.Del(ctx, reviewTokenKey(actorID)).Err()
}
