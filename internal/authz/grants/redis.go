package grants

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

const (
	redisKeyPrefix = "authz:grants:"
	redisAllowed   = "1"
	redisDenied    = "0"
)

// RedisStore keeps one hash per role. Fields are "module:action" and values
// are "1" (allowed) or "0" (denied).
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func roleKey(role authz.Role) string {
	return redisKeyPrefix + string(role)
}

func cellField(module authz.Module, action authz.Action) string {
	return string(module) + ":" + string(action)
}

func (s *RedisStore) Lookup(ctx context.Context, role authz.Role, module authz.Module, action authz.Action) (authz.GrantState, error) {
	val, err := s.client.HGet(ctx, roleKey(role), cellField(module, action)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return authz.GrantUnset, nil
		}
		return authz.GrantUnset, err
	}
	switch val {
	case redisAllowed:
		return authz.GrantAllowed, nil
	case redisDenied:
		return authz.GrantDenied, nil
	default:
		// Unparseable cells deny.
		return authz.GrantDenied, nil
	}
}

func (s *RedisStore) Set(ctx context.Context, g authz.Grant) error {
	val := redisDenied
	if g.Allowed {
		val = redisAllowed
	}
	return s.client.HSet(ctx, roleKey(g.Role), cellField(g.Module, g.Action), val).Err()
}

func (s *RedisStore) ListByRole(ctx context.Context, role authz.Role) ([]authz.Grant, error) {
	fields, err := s.client.HGetAll(ctx, roleKey(role)).Result()
	if err != nil {
		return nil, err
	}
	out := decodeRole(role, fields)
	sortGrants(out)
	return out, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]authz.Grant, error) {
	roles := authz.Roles()
	cmds := make([]*redis.MapStringStringCmd, len(roles))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, info := range roles {
			cmds[i] = p.HGetAll(ctx, roleKey(info.ID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var out []authz.Grant
	for i, info := range roles {
		out = append(out, decodeRole(info.ID, cmds[i].Val())...)
	}
	sortGrants(out)
	return out, nil
}

func decodeRole(role authz.Role, fields map[string]string) []authz.Grant {
	out := make([]authz.Grant, 0, len(fields))
	for field, val := range fields {
		module, action, ok := strings.Cut(field, ":")
		if !ok || (val != redisAllowed && val != redisDenied) {
			continue
		}
		out = append(out, authz.Grant{
			Role:    role,
			Module:  authz.Module(module),
			Action:  authz.Action(action),
			Allowed: val == redisAllowed,
		})
	}
	return out
}

var _ authz.GrantStore = (*RedisStore)(nil)
