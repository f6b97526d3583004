package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// tree renders cfg as the generic map its JSON tags describe.
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromTree(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitPath(path string) ([]string, error) {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("invalid path %q", path)
		}
	}
	return keys, nil
}

// walk descends through keys, creating missing objects when create is set.
func walk(m map[string]any, keys []string, create bool) (map[string]any, error) {
	node := m
	for i, k := range keys {
		next, ok := node[k]
		if !ok && create {
			child := make(map[string]any)
			node[k] = child
			node = child
			continue
		}
		child, isMap := next.(map[string]any)
		if !ok || !isMap {
			return nil, fmt.Errorf("%s is not a section", strings.Join(keys[:i+1], "."))
		}
		node = child
	}
	return node, nil
}

// GetByPath returns the value at a dot-separated path such as "backend.baseURL".
// List elements are addressed by index.
func GetByPath(cfg *Config, path string) (any, error) {
	keys, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var cur any = m
	for _, k := range keys {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[k]
			if !ok {
				return nil, fmt.Errorf("no setting %s", path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%s: index %q out of range", path, k)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("%s: %s is a value, not a section", path, k)
		}
	}
	return cur, nil
}

// SetByPath assigns value at path. String input is coerced to a bool or a
// number when it parses as one and the field accepts it; otherwise the raw
// string is stored. cfg is left untouched on error.
func SetByPath(cfg *Config, path string, value any) error {
	keys, err := splitPath(path)
	if err != nil {
		return err
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}
	section, err := walk(m, keys[:len(keys)-1], true)
	if err != nil {
		return err
	}
	leaf := keys[len(keys)-1]

	var next *Config
	for _, candidate := range []any{coerce(value), value} {
		section[leaf] = candidate
		if next, err = fromTree(m); err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	if _, gerr := GetByPath(next, path); gerr != nil && value != "" {
		return fmt.Errorf("set %s: unknown setting", path)
	}
	*cfg = *next
	return nil
}

func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of cfg with credentials masked, for display.
func Sanitize(cfg *Config) *Config {
	m, err := tree(cfg)
	if err != nil {
		return cfg
	}
	out, err := fromTree(m)
	if err != nil {
		return cfg
	}
	for _, secret := range []*string{
		&out.Backend.APIKey,
		&out.Session.Redis.Password,
		&out.Channels.Twilio.AuthToken,
		&out.Channels.WhatsApp.AccessToken,
		&out.Channels.WhatsApp.AppSecret,
		&out.Channels.WhatsApp.VerifyToken,
		&out.Channels.Webhook.Secret,
		&out.Channels.Telegram.Token,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	out.Store.DSN = maskDSN(out.Store.DSN)
	return out
}

// maskDSN hides the password in a user:pass@tcp(host)/db DSN.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	user, _, hasPass := strings.Cut(dsn[:at], ":")
	if !hasPass {
		return dsn
	}
	return user + ":***" + dsn[at:]
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens cfg into path -> value for every leaf setting.
func ListPaths(cfg *Config) map[string]any {
	m, err := tree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var flatten func(prefix string, node map[string]any)
	flatten = func(prefix string, node map[string]any) {
		for k, v := range node {
			if child, ok := v.(map[string]any); ok {
				flatten(prefix+k+".", child)
				continue
			}
			out[prefix+k] = v
		}
	}
	flatten("", m)
	return out
}

// SortedPaths returns the keys of ListPaths in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
