package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// KV is a string key/value view over the kv table. Missing keys read as "".
type KV struct{ db *DB }

// KV returns the key/value view of d.
func (d *DB) KV() *KV { return &KV{db: d} }

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := k.db.QueryRowContext(ctx, k.db.Rebind(`SELECT value FROM kv WHERE key=$1`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	_, err := k.db.ExecContext(ctx, k.db.Rebind(
		`INSERT INTO kv(key, value, updated_at) VALUES($1,$2,CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`), key, value)
	return err
}

func (k *KV) Delete(ctx context.Context, key string) error {
	_, err := k.db.ExecContext(ctx, k.db.Rebind(`DELETE FROM kv WHERE key=$1`), key)
	return err
}

// List returns every key starting with prefix.
func (k *KV) List(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := k.db.QueryContext(ctx, k.db.Rebind(
		`SELECT key, COALESCE(value,'') FROM kv WHERE key LIKE $1 ESCAPE '\' ORDER BY key`), likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		// sqlite LIKE ignores ASCII case
		if strings.HasPrefix(key, prefix) {
			out[key] = value
		}
	}
	return out, rows.Err()
}

func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "%"
}
