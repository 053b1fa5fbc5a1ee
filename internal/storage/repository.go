package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS notices (
	id                   TEXT PRIMARY KEY,
	title                TEXT,
	summary              TEXT,
	description          TEXT,
	procurement_category TEXT,
	procurement_type     TEXT,
	agency               TEXT,
	status               TEXT,
	deadline             DATE,
	publish_date         TIMESTAMPTZ,
	budget_min           DOUBLE PRECISION,
	budget_max           DOUBLE PRECISION,
	currency             TEXT,
	raw_json             JSONB,
	fit_score            INTEGER,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notice_documents (
	id        BIGSERIAL PRIMARY KEY,
	notice_id TEXT NOT NULL REFERENCES notices(id) ON DELETE CASCADE,
	url       TEXT,
	name      TEXT,
	type      TEXT
);

CREATE TABLE IF NOT EXISTS notice_unspsc (
	id          BIGSERIAL PRIMARY KEY,
	notice_id   TEXT NOT NULL REFERENCES notices(id) ON DELETE CASCADE,
	code        TEXT,
	description TEXT
);

CREATE TABLE IF NOT EXISTS notice_countries (
	id           BIGSERIAL PRIMARY KEY,
	notice_id    TEXT NOT NULL REFERENCES notices(id) ON DELETE CASCADE,
	country_code TEXT,
	country_name TEXT
)`

var childTables = []string{"notice_documents", "notice_unspsc", "notice_countries"}

// Repository persists notices and their child collections.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the notice tables if needed.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create notice tables: %w", err)
	}
	return nil
}

// Upsert writes the notice and replaces its child collections within one
// transaction: the parent row is inserted or fully overwritten, then every
// existing child row is deleted and the current children inserted. Deleting
// instead of diffing makes the no-stale-children invariant unconditional.
func (r *Repository) Upsert(ctx context.Context, n *StoredNotice) error {
	if n.ID == "" {
		return fmt.Errorf("notice id is required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert for %s: %w", n.ID, err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			_ = rErr
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO notices (id, title, summary, description, procurement_category,
			procurement_type, agency, status, deadline, publish_date,
			budget_min, budget_max, currency, raw_json, fit_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO UPDATE SET
			title                = EXCLUDED.title,
			summary              = EXCLUDED.summary,
			description          = EXCLUDED.description,
			procurement_category = EXCLUDED.procurement_category,
			procurement_type     = EXCLUDED.procurement_type,
			agency               = EXCLUDED.agency,
			status               = EXCLUDED.status,
			deadline             = EXCLUDED.deadline,
			publish_date         = EXCLUDED.publish_date,
			budget_min           = EXCLUDED.budget_min,
			budget_max           = EXCLUDED.budget_max,
			currency             = EXCLUDED.currency,
			raw_json             = EXCLUDED.raw_json,
			fit_score            = EXCLUDED.fit_score,
			updated_at           = NOW()`,
		n.ID, n.Title, n.Summary, n.Description, n.ProcurementCategory,
		n.ProcurementType, n.Agency, n.Status, n.Deadline, n.PublishDate,
		n.BudgetMin, n.BudgetMax, n.Currency, n.Raw, n.FitScore,
	)
	if err != nil {
		return fmt.Errorf("upsert notice %s: %w", n.ID, err)
	}

	for _, table := range childTables {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE notice_id = $1`, table), n.ID,
		); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, n.ID, err)
		}
	}

	for _, doc := range n.Documents {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notice_documents (notice_id, url, name, type) VALUES ($1, $2, $3, $4)`,
			n.ID, doc.URL, doc.Name, doc.Type,
		); err != nil {
			return fmt.Errorf("insert document for %s: %w", n.ID, err)
		}
	}

	for _, code := range n.UNSPSC {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notice_unspsc (notice_id, code, description) VALUES ($1, $2, $3)`,
			n.ID, code.Code, code.Description,
		); err != nil {
			return fmt.Errorf("insert unspsc for %s: %w", n.ID, err)
		}
	}

	for _, country := range n.Countries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notice_countries (notice_id, country_code, country_name) VALUES ($1, $2, $3)`,
			n.ID, country.Code, country.Name,
		); err != nil {
			return fmt.Errorf("insert country for %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert for %s: %w", n.ID, err)
	}

	return nil
}

// FetchAll returns all stored notices with their children, highest fit
// score first.
func (r *Repository) FetchAll(ctx context.Context) ([]*StoredNotice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, summary, description, procurement_category,
			procurement_type, agency, status, deadline, publish_date,
			budget_min, budget_max, currency, raw_json, fit_score
		 FROM notices
		 ORDER BY fit_score DESC NULLS LAST, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query notices: %w", err)
	}
	defer rows.Close()

	var notices []*StoredNotice
	for rows.Next() {
		var n StoredNotice
		if err := rows.Scan(&n.ID, &n.Title, &n.Summary, &n.Description,
			&n.ProcurementCategory, &n.ProcurementType, &n.Agency, &n.Status,
			&n.Deadline, &n.PublishDate, &n.BudgetMin, &n.BudgetMax,
			&n.Currency, &n.Raw, &n.FitScore,
		); err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}

	for _, n := range notices {
		if err := r.loadChildren(ctx, n); err != nil {
			return nil, err
		}
	}

	return notices, nil
}

func (r *Repository) loadChildren(ctx context.Context, n *StoredNotice) error {
	docRows, err := r.pool.Query(ctx,
		`SELECT url, name, type FROM notice_documents WHERE notice_id = $1 ORDER BY id`, n.ID)
	if err != nil {
		return fmt.Errorf("query documents for %s: %w", n.ID, err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var d Document
		if err := docRows.Scan(&d.URL, &d.Name, &d.Type); err != nil {
			return fmt.Errorf("scan document for %s: %w", n.ID, err)
		}
		n.Documents = append(n.Documents, d)
	}
	if err := docRows.Err(); err != nil {
		return fmt.Errorf("iterate documents for %s: %w", n.ID, err)
	}

	codeRows, err := r.pool.Query(ctx,
		`SELECT code, description FROM notice_unspsc WHERE notice_id = $1 ORDER BY id`, n.ID)
	if err != nil {
		return fmt.Errorf("query unspsc for %s: %w", n.ID, err)
	}
	defer codeRows.Close()
	for codeRows.Next() {
		var u UNSPSC
		if err := codeRows.Scan(&u.Code, &u.Description); err != nil {
			return fmt.Errorf("scan unspsc for %s: %w", n.ID, err)
		}
		n.UNSPSC = append(n.UNSPSC, u)
	}
	if err := codeRows.Err(); err != nil {
		return fmt.Errorf("iterate unspsc for %s: %w", n.ID, err)
	}

	countryRows, err := r.pool.Query(ctx,
		`SELECT country_code, country_name FROM notice_countries WHERE notice_id = $1 ORDER BY id`, n.ID)
	if err != nil {
		return fmt.Errorf("query countries for %s: %w", n.ID, err)
	}
	defer countryRows.Close()
	for countryRows.Next() {
		var c Country
		if err := countryRows.Scan(&c.Code, &c.Name); err != nil {
			return fmt.Errorf("scan country for %s: %w", n.ID, err)
		}
		n.Countries = append(n.Countries, c)
	}
	if err := countryRows.Err(); err != nil {
		return fmt.Errorf("iterate countries for %s: %w", n.ID, err)
	}

	return nil
}
