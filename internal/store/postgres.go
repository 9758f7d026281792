package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-cli/internal/db"
	"github.com/sells-group/campaign-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. Lead
// upserts and heartbeats dominate the write load during a running campaign.
var preparedStatements = map[string]string{
	"upsert_lead": `INSERT INTO leads (campaign_id, place_id, id, unit_id, stage, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (campaign_id, place_id) DO UPDATE SET
		   unit_id = EXCLUDED.unit_id, stage = EXCLUDED.stage, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
	"get_lead":         `SELECT id, stage, data FROM leads WHERE campaign_id = $1 AND place_id = $2`,
	"touch_heartbeat":  `UPDATE campaigns SET heartbeat_at = $1 WHERE id = $2`,
	"get_campaign":     `SELECT status, completion_reason, cost_spent_usd, heartbeat_at, data FROM campaigns WHERE id = $1`,
	"write_checkpoint": `INSERT INTO checkpoints (campaign_id, units_done, last_unit_id, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (campaign_id) DO UPDATE SET units_done = $2, last_unit_id = $3, updated_at = $4`,
	"read_checkpoint":  `SELECT campaign_id, units_done, last_unit_id, updated_at FROM checkpoints WHERE campaign_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	completion_reason TEXT NOT NULL DEFAULT '',
	cost_spent_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	heartbeat_at      TIMESTAMPTZ,
	data              JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	place_id    TEXT NOT NULL,
	id          TEXT NOT NULL,
	unit_id     TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT 'discovered',
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (campaign_id, place_id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	campaign_id  TEXT PRIMARY KEY REFERENCES campaigns(id),
	units_done   INTEGER NOT NULL DEFAULT 0,
	last_unit_id TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	campaign_id  TEXT NOT NULL REFERENCES campaigns(id),
	capability   TEXT NOT NULL,
	calls        INTEGER NOT NULL DEFAULT 0,
	cost_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_call_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (campaign_id, capability)
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_stage ON leads(campaign_id, stage);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_unit ON leads(campaign_id, unit_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal campaign")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO campaigns (id, name, status, completion_reason, cost_spent_usd, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Name, string(c.Status), c.CompletionReason, c.CostSpentUSD, data, c.CreatedAt, c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert campaign")
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal campaign")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET name = $1, status = $2, completion_reason = $3, cost_spent_usd = $4, heartbeat_at = $5, data = $6, updated_at = $7
		 WHERE id = $8`,
		c.Name, string(c.Status), c.CompletionReason, c.CostSpentUSD, c.HeartbeatAt, data, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "campaign %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $1, completion_reason = $2, updated_at = $3 WHERE id = $4`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update campaign status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "campaign %s", id)
	}
	return nil
}

func (s *PostgresStore) TouchHeartbeat(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET heartbeat_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch heartbeat %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "campaign %s", id)
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT status, completion_reason, cost_spent_usd, heartbeat_at, data FROM campaigns WHERE id = $1`,
		id,
	)
	c, err := scanCampaignPG(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT status, completion_reason, cost_spent_usd, heartbeat_at, data FROM campaigns WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaignPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "postgres: list campaigns iterate")
}

func (s *PostgresStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (campaign_id, place_id, id, unit_id, stage, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (campaign_id, place_id) DO UPDATE SET
		   unit_id = EXCLUDED.unit_id, stage = EXCLUDED.stage, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		lead.CampaignID, lead.PlaceID, lead.ID, lead.UnitID, string(lead.Stage), data, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert lead %s/%s", lead.CampaignID, lead.PlaceID)
}

// BulkUpsertLeads writes a discovery batch in one round trip via a temp
// table. Falls back on the same conflict key as UpsertLead.
func (s *PostgresStore) BulkUpsertLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for i := range leads {
		data, err := json.Marshal(&leads[i])
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal lead")
		}
		rows = append(rows, []any{
			leads[i].CampaignID, leads[i].PlaceID, leads[i].ID, leads[i].UnitID,
			string(leads[i].Stage), data, now, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      []string{"campaign_id", "place_id", "id", "unit_id", "stage", "data", "created_at", "updated_at"},
		ConflictKeys: []string{"campaign_id", "place_id"},
		UpdateCols:   []string{"unit_id", "stage", "data", "updated_at"},
	}, rows)
}

func (s *PostgresStore) GetLead(ctx context.Context, campaignID, placeID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, stage, data FROM leads WHERE campaign_id = $1 AND place_id = $2`,
		campaignID, placeID,
	)
	l, err := scanLeadPG(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s/%s", campaignID, placeID)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, campaignID string, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, stage, data FROM leads WHERE campaign_id = $1`
	args := []any{campaignID}
	argIdx := 2

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND stage = $%d`, argIdx)
		args = append(args, string(filter.Stage))
		argIdx++
	}
	if filter.UnitID != "" {
		query += fmt.Sprintf(` AND unit_id = $%d`, argIdx)
		args = append(args, filter.UnitID)
		argIdx++
	}
	query += ` ORDER BY created_at ASC, place_id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLeadPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) CountLeads(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM leads WHERE campaign_id = $1`, campaignID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) WriteCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (campaign_id, units_done, last_unit_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (campaign_id) DO UPDATE SET
		   units_done = $2, last_unit_id = $3, updated_at = $4`,
		cp.CampaignID, cp.UnitsDone, cp.LastUnitID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: write checkpoint %s", cp.CampaignID)
}

func (s *PostgresStore) ReadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.pool.QueryRow(ctx,
		`SELECT campaign_id, units_done, last_unit_id, updated_at FROM checkpoints WHERE campaign_id = $1`,
		campaignID,
	).Scan(&cp.CampaignID, &cp.UnitsDone, &cp.LastUnitID, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: read checkpoint %s", campaignID)
	}
	return &cp, nil
}

func (s *PostgresStore) RecordCost(ctx context.Context, campaignID, capability string, calls int, costUSD float64) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_ledger (campaign_id, capability, calls, cost_usd, last_call_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (campaign_id, capability) DO UPDATE SET
		   calls = cost_ledger.calls + $3,
		   cost_usd = cost_ledger.cost_usd + $4,
		   last_call_at = $5`,
		campaignID, capability, calls, costUSD, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record cost %s/%s", campaignID, capability)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE campaigns SET cost_spent_usd = cost_spent_usd + $1, updated_at = $2 WHERE id = $3`,
		costUSD, now, campaignID,
	)
	return eris.Wrapf(err, "postgres: bump campaign spend %s", campaignID)
}

func (s *PostgresStore) ReadLedger(ctx context.Context, campaignID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT campaign_id, capability, calls, cost_usd, last_call_at FROM cost_ledger
		 WHERE campaign_id = $1 ORDER BY capability ASC`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.CampaignID, &e.Capability, &e.Calls, &e.CostUSD, &e.LastCallAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: read ledger iterate")
}

func scanCampaignPG(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var data []byte
	var status, reason string
	var spent float64
	var heartbeat *time.Time

	err := row.Scan(&status, &reason, &spent, &heartbeat, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "unmarshal campaign")
	}
	c.Status = model.CampaignStatus(status)
	c.CompletionReason = reason
	c.CostSpentUSD = spent
	c.HeartbeatAt = heartbeat
	return &c, nil
}

func scanLeadPG(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var id, stage string
	var data []byte

	err := row.Scan(&id, &stage, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrap(err, "unmarshal lead")
	}
	l.ID = id
	l.Stage = model.LeadStage(stage)
	return &l, nil
}
