package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/campaign-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'pending',
	completion_reason TEXT NOT NULL DEFAULT '',
	cost_spent_usd    REAL NOT NULL DEFAULT 0,
	heartbeat_at      DATETIME,
	data              TEXT NOT NULL,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	place_id    TEXT NOT NULL,
	id          TEXT NOT NULL,
	unit_id     TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT 'discovered',
	data        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (campaign_id, place_id)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	campaign_id  TEXT PRIMARY KEY REFERENCES campaigns(id),
	units_done   INTEGER NOT NULL DEFAULT 0,
	last_unit_id TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	campaign_id  TEXT NOT NULL REFERENCES campaigns(id),
	capability   TEXT NOT NULL,
	calls        INTEGER NOT NULL DEFAULT 0,
	cost_usd     REAL NOT NULL DEFAULT 0,
	last_call_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (campaign_id, capability)
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_stage ON leads(campaign_id, stage);
CREATE INDEX IF NOT EXISTS idx_leads_campaign_unit ON leads(campaign_id, unit_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal campaign")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, status, completion_reason, cost_spent_usd, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Status), c.CompletionReason, c.CostSpentUSD, string(data), c.CreatedAt, c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert campaign")
}

func (s *SQLiteStore) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal campaign")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET name = ?, status = ?, completion_reason = ?, cost_spent_usd = ?, heartbeat_at = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, string(c.Status), c.CompletionReason, c.CostSpentUSD, c.HeartbeatAt, string(data), time.Now().UTC(), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign %s", c.ID)
	}
	return checkRowsAffected(res, "campaign", c.ID)
}

func (s *SQLiteStore) UpdateCampaignStatus(ctx context.Context, id string, status model.CampaignStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, completion_reason = ?, updated_at = ? WHERE id = ?`,
		string(status), reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update campaign status %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) TouchHeartbeat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET heartbeat_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch heartbeat %s", id)
	}
	return checkRowsAffected(res, "campaign", id)
}

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, completion_reason, cost_spent_usd, heartbeat_at, data FROM campaigns WHERE id = ?`,
		id,
	)
	return scanCampaignSQLite(row)
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT status, completion_reason, cost_spent_usd, heartbeat_at, data FROM campaigns WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaignSQLite(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, eris.Wrap(rows.Err(), "sqlite: list campaigns iterate")
}

func (s *SQLiteStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lead")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (campaign_id, place_id, id, unit_id, stage, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (campaign_id, place_id) DO UPDATE SET
		   unit_id = excluded.unit_id,
		   stage = excluded.stage,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		lead.CampaignID, lead.PlaceID, lead.ID, lead.UnitID, string(lead.Stage), string(data), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert lead %s/%s", lead.CampaignID, lead.PlaceID)
}

func (s *SQLiteStore) GetLead(ctx context.Context, campaignID, placeID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, stage, data FROM leads WHERE campaign_id = ? AND place_id = ?`,
		campaignID, placeID,
	)
	return scanLeadSQLite(row)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, campaignID string, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT id, stage, data FROM leads WHERE campaign_id = ?`
	args := []any{campaignID}

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.UnitID != "" {
		query += ` AND unit_id = ?`
		args = append(args, filter.UnitID)
	}
	query += ` ORDER BY created_at ASC, place_id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLeadSQLite(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) CountLeads(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE campaign_id = ?`, campaignID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) WriteCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (campaign_id, units_done, last_unit_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (campaign_id) DO UPDATE SET
		   units_done = excluded.units_done,
		   last_unit_id = excluded.last_unit_id,
		   updated_at = excluded.updated_at`,
		cp.CampaignID, cp.UnitsDone, cp.LastUnitID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: write checkpoint %s", cp.CampaignID)
}

func (s *SQLiteStore) ReadCheckpoint(ctx context.Context, campaignID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT campaign_id, units_done, last_unit_id, updated_at FROM checkpoints WHERE campaign_id = ?`,
		campaignID,
	).Scan(&cp.CampaignID, &cp.UnitsDone, &cp.LastUnitID, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: read checkpoint %s", campaignID)
	}
	return &cp, nil
}

func (s *SQLiteStore) RecordCost(ctx context.Context, campaignID, capability string, calls int, costUSD float64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_ledger (campaign_id, capability, calls, cost_usd, last_call_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (campaign_id, capability) DO UPDATE SET
		   calls = calls + excluded.calls,
		   cost_usd = cost_usd + excluded.cost_usd,
		   last_call_at = excluded.last_call_at`,
		campaignID, capability, calls, costUSD, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record cost %s/%s", campaignID, capability)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE campaigns SET cost_spent_usd = cost_spent_usd + ?, updated_at = ? WHERE id = ?`,
		costUSD, now, campaignID,
	)
	return eris.Wrapf(err, "sqlite: bump campaign spend %s", campaignID)
}

func (s *SQLiteStore) ReadLedger(ctx context.Context, campaignID string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, capability, calls, cost_usd, last_call_at FROM cost_ledger
		 WHERE campaign_id = ? ORDER BY capability ASC`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.CampaignID, &e.Capability, &e.Calls, &e.CostUSD, &e.LastCallAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: read ledger iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanCampaignSQLite rebuilds a campaign from its JSON blob, then overrides
// the fields mutated by targeted updates with their column values.
func scanCampaignSQLite(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var dataJSON string
	var status, reason string
	var spent float64
	var heartbeat sql.NullTime

	err := row.Scan(&status, &reason, &spent, &heartbeat, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "campaign")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan campaign")
	}

	if err := json.Unmarshal([]byte(dataJSON), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal campaign")
	}
	c.Status = model.CampaignStatus(status)
	c.CompletionReason = reason
	c.CostSpentUSD = spent
	if heartbeat.Valid {
		t := heartbeat.Time.UTC()
		c.HeartbeatAt = &t
	}
	return &c, nil
}

func scanLeadSQLite(row scannable) (*model.Lead, error) {
	var l model.Lead
	var id, stage, dataJSON string

	err := row.Scan(&id, &stage, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "lead")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	if err := json.Unmarshal([]byte(dataJSON), &l); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lead")
	}
	// The row's identity wins over the blob on re-upserts.
	l.ID = id
	l.Stage = model.LeadStage(stage)
	return &l, nil
}
