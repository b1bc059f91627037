package redisdb

import "context"

// The whitelist is a plain set so membership checks stay O(1).

func (r *RedisClient) AddMember(ctx context.Context, counterparty string) (bool, error) {
	n, err := r.Client.SAdd(ctx, whitelistKey, counterparty).Result()
	return n > 0, err
}

func (r *RedisClient) RemoveMember(ctx context.Context, counterparty string) (bool, error) {
	n, err := r.Client.SRem(ctx, whitelistKey, counterparty).Result()
	return n > 0, err
}

func (r *RedisClient) IsMember(ctx context.Context, counterparty string) (bool, error) {
	return r.Client.SIsMember(ctx, whitelistKey, counterparty).Result()
}
