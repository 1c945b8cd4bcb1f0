// Package session keeps the ephemeral WebAuthn ceremony state in Redis,
// keyed by a random challenge id handed back to the client. Challenge state
// is therefore shared across instances instead of relying on cookie
// affinity.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
)

// Challenge は進行中のセレモニー 1 件分。verify で一度読んだら消す。
type Challenge struct {
	SessionData webauthn.SessionData `json:"sd"`

	// 登録セレモニーで新規ユーザー候補となる情報
	CandidateUserID string `json:"candidate_user_id,omitempty"`
	CandidateEmail  string `json:"candidate_email,omitempty"`
	CandidateHandle string `json:"candidate_handle,omitempty"`

	// 既存ユーザーが対象のとき（認証、またはログイン済みの鍵追加）
	UserID uint `json:"user_id,omitempty"`
}

type ChallengeStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewChallengeStore(rdb *redis.Client, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{rdb: rdb, ttl: ttl}
}

func regKey(cid string) string  { return fmt.Sprintf("webauthn:reg:%s", cid) }
func authKey(cid string) string { return fmt.Sprintf("webauthn:auth:%s", cid) }

func (s *ChallengeStore) save(ctx context.Context, key string, ch *Challenge) error {
	b, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, s.ttl).Err()
}

func (s *ChallengeStore) load(ctx context.Context, key string) (*Challenge, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var ch Challenge
	if err := json.Unmarshal(b, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChallengeStore) SaveRegistration(ctx context.Context, cid string, ch *Challenge) error {
	return s.save(ctx, regKey(cid), ch)
}

func (s *ChallengeStore) LoadRegistration(ctx context.Context, cid string) (*Challenge, error) {
	return s.load(ctx, regKey(cid))
}

func (s *ChallengeStore) DeleteRegistration(ctx context.Context, cid string) {
	_ = s.rdb.Del(ctx, regKey(cid)).Err()
}

func (s *ChallengeStore) SaveAuthentication(ctx context.Context, cid string, ch *Challenge) error {
	return s.save(ctx, authKey(cid), ch)
}

func (s *ChallengeStore) LoadAuthentication(ctx context.Context, cid string) (*Challenge, error) {
	return s.load(ctx, authKey(cid))
}

func (s *ChallengeStore) DeleteAuthentication(ctx context.Context, cid string) {
	_ = s.rdb.Del(ctx, authKey(cid)).Err()
}
