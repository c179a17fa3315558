// internal/store/redis.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"welfare-caseworker/internal/models"
)

const DefaultKeyPrefix = "caseworker:"

// RedisStore keeps each case as JSON under <prefix>case:<id>. Insertion order lives in
// the <prefix>cases list and approval records are appended to <prefix>approvals.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) caseKey(id string) string { return s.prefix + "case:" + id }
func (s *RedisStore) casesKey() string         { return s.prefix + "cases" }
func (s *RedisStore) approvalsKey() string     { return s.prefix + "approvals" }

func (s *RedisStore) Append(ctx context.Context, c *models.Case) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}
	key := s.caseKey(c.CaseID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicate, c.CaseID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.RPush(ctx, s.casesKey(), c.CaseID)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.CaseID)
	}
	if err != nil && !errors.Is(err, ErrDuplicate) {
		return fmt.Errorf("append case: %w", err)
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, caseID string) (*models.Case, error) {
	payload, err := s.client.Get(ctx, s.caseKey(caseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return decodeCase(payload)
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*models.Case, error) {
	ids, err := s.client.LRange(ctx, s.casesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list case ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Case{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.caseKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load cases: %w", err)
	}

	out := make([]*models.Case, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		c, err := decodeCase([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, updated *models.Case, expected models.CaseStatus, rec *models.ApprovalRecord) error {
	payload, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}
	var recPayload []byte
	if rec != nil {
		if recPayload, err = json.Marshal(rec); err != nil {
			return fmt.Errorf("marshal approval: %w", err)
		}
	}
	key := s.caseKey(updated.CaseID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, updated.CaseID)
		}
		if err != nil {
			return err
		}
		current, err := decodeCase(raw)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return fmt.Errorf("%w: %s is %s", ErrConflict, updated.CaseID, current.Status)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if recPayload != nil {
				pipe.RPush(ctx, s.approvalsKey(), recPayload)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: %s changed concurrently", ErrConflict, updated.CaseID)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	default:
		return fmt.Errorf("swap case: %w", err)
	}
}

func (s *RedisStore) ListApprovals(ctx context.Context, caseID string) ([]*models.ApprovalRecord, error) {
	raw, err := s.client.LRange(ctx, s.approvalsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	out := make([]*models.ApprovalRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.ApprovalRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode approval: %w", err)
		}
		if caseID == "" || rec.CaseID == caseID {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (s *RedisStore) Counts(ctx context.Context) (Counts, error) {
	pending, err := s.List(ctx, Filter{Status: models.StatusPendingApproval})
	if err != nil {
		return Counts{}, err
	}
	cases, err := s.client.LLen(ctx, s.casesKey()).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("count cases: %w", err)
	}
	approvals, err := s.client.LLen(ctx, s.approvalsKey()).Result()
	if err != nil {
		return Counts{}, fmt.Errorf("count approvals: %w", err)
	}
	return Counts{Cases: int(cases), Pending: len(pending), Approvals: int(approvals)}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
