package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvelder/shopcore/internal/order"
)

const listStatusesSQL = `SELECT id, transitions FROM order_statuses ORDER BY position`

// LoadStatusSet reads the configured order status set and its
// allowed-transitions table. An empty table falls back to the default set.
func LoadStatusSet(ctx context.Context, pool *pgxpool.Pool) (*order.StatusSet, error) {
	rows, err := pool.Query(ctx, listStatusesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list order statuses")
	}
	defer rows.Close()

	var (
		ids         []string
		transitions = make(map[string][]string)
	)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "scan order status")
		}
		var tos []string
		if err := json.Unmarshal(raw, &tos); err != nil {
			return nil, errors.Wrapf(err, "decode transitions for %q", id)
		}
		ids = append(ids, id)
		transitions[id] = tos
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order statuses")
	}

	if len(ids) == 0 {
		return order.DefaultStatusSet(), nil
	}
	return order.NewStatusSet(ids, transitions)
}
