package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRoleMembershipStore keeps principal -> roles in Redis sets
// (key: rlsrole:{principalID}).
type RedisRoleMembershipStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisRoleMembershipStore(client *redis.Client) *RedisRoleMembershipStore {
	return &RedisRoleMembershipStore{client: client, keyFmt: "rlsrole:%s"}
}

func (r *RedisRoleMembershipStore) key(principalID string) string {
	return fmt.Sprintf(r.keyFmt, principalID)
}

func (r *RedisRoleMembershipStore) AssignRole(ctx context.Context, principalID, roleID string) error {
	return r.client.SAdd(ctx, r.key(principalID), roleID).Err()
}

func (r *RedisRoleMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string) error {
	return r.client.SRem(ctx, r.key(principalID), roleID).Err()
}

func (r *RedisRoleMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(principalID)).Result()
}
