package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/motorbid/vehicle-auction/internal/model"
)

const auctionColumns = `id, title, vin, starts_at, ends_at, current_price, soft_close_sec, status, source, source_id, raw, created_at, updated_at`

// AuctionRepo manages persistence for auctions. Methods ending in Tx
// participate in a caller-supplied transaction; the caller commits or rolls
// back. All timestamps are UTC.
type AuctionRepo struct {
	db *sql.DB
}

// NewAuctionRepo constructs an AuctionRepo with the given DB handle.
func NewAuctionRepo(db *sql.DB) *AuctionRepo { return &AuctionRepo{db: db} }

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *AuctionRepo) DB() *sql.DB { return r.db }

func scanAuction(row interface{ Scan(...any) error }) (model.Auction, error) {
	var (
		a        model.Auction
		vin      sql.NullString
		source   sql.NullString
		sourceID sql.NullString
		raw      []byte
	)
	err := row.Scan(&a.ID, &a.Title, &vin, &a.StartsAt, &a.EndsAt, &a.CurrentPrice,
		&a.SoftCloseSec, &a.Status, &source, &sourceID, &raw, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Auction{}, err
	}
	a.VIN = vin.String
	a.Source = source.String
	a.SourceID = sourceID.String
	a.Raw = raw
	return a, nil
}

// Create inserts a new auction and populates the generated ID and DB-default
// fields on the passed struct. A duplicate VIN yields ErrVINExists.
func (r *AuctionRepo) Create(ctx context.Context, a *model.Auction) error {
	if a.SoftCloseSec == 0 {
		a.SoftCloseSec = model.DefaultSoftCloseSec
	}
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	const q = `INSERT INTO auctions (title, vin, starts_at, ends_at, current_price, soft_close_sec, status, source, source_id, raw)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		a.Title, nullStr(a.VIN), a.StartsAt.UTC(), a.EndsAt.UTC(), a.CurrentPrice,
		a.SoftCloseSec, a.Status, nullStr(a.Source), nullStr(a.SourceID), nullBytes(a.Raw))
	if err != nil {
		if isDuplicate(err) {
			return ErrVINExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	got, err := r.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = got
	return nil
}

// GetByID fetches an auction by id. Returns model.ErrAuctionNotFound when
// the row does not exist.
func (r *AuctionRepo) GetByID(ctx context.Context, id uint64) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ? LIMIT 1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, model.ErrAuctionNotFound
	}
	return a, err
}

// FindBySource locates an imported auction by its vendor coordinates.
func (r *AuctionRepo) FindBySource(ctx context.Context, source, sourceID string) (model.Auction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE source = ? AND source_id = ? LIMIT 1`,
		source, sourceID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, model.ErrAuctionNotFound
	}
	return a, err
}

// ListFilter controls the auction listing query. Status filters map to time
// windows (except CANCELLED, which is column-only) so listings reflect the
// real phase even when the persisted status lags the reconciler.
type ListFilter struct {
	Status       model.AuctionStatus // optional
	Search       string              // matches title or VIN, case-insensitive
	Sort         string              // ends_at | created_at | current_price
	Order        string              // asc | desc
	Page         int
	Limit        int
	ExcludeEnded bool
}

var listSortColumns = map[string]string{
	"ends_at":       "ends_at",
	"created_at":    "created_at",
	"current_price": "current_price",
}

// List returns a page of auctions plus the total match count.
func (r *AuctionRepo) List(ctx context.Context, f ListFilter, now time.Time) ([]model.Auction, int, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)

	switch f.Status {
	case model.StatusScheduled:
		where = append(where, "status <> ?", "starts_at > ?")
		args = append(args, model.StatusCancelled, now)
	case model.StatusLive:
		where = append(where, "status <> ?", "starts_at <= ?", "ends_at > ?")
		args = append(args, model.StatusCancelled, now, now)
	case model.StatusEnded:
		where = append(where, "status <> ?", "ends_at <= ?")
		args = append(args, model.StatusCancelled, now)
	case model.StatusCancelled:
		where = append(where, "status = ?")
		args = append(args, model.StatusCancelled)
	default:
		if f.ExcludeEnded {
			where = append(where, "ends_at > ?")
			args = append(args, now)
		}
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(vin) LIKE ?)")
		pat := "%" + strings.ToLower(s) + "%"
		args = append(args, pat, pat)
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auctions`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortCol, ok := listSortColumns[f.Sort]
	if !ok {
		sortCol = "ends_at"
	}
	order := "ASC"
	if strings.EqualFold(f.Order, "desc") {
		order = "DESC"
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	offset := (page - 1) * limit

	q := fmt.Sprintf(`SELECT %s FROM auctions%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		auctionColumns, cond, sortCol, order)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]model.Auction, 0, limit)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats summarises auction phases for the admin dashboard. Live, scheduled
// and ended are derived from time windows; cancelled from the column.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Live      int `json:"live"`
	Scheduled int `json:"scheduled"`
	Ended     int `json:"ended"`
	Cancelled int `json:"cancelled"`
}

// CountStats computes listing statistics at the given instant.
func (r *AuctionRepo) CountStats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	const q = `SELECT
	    COUNT(*),
	    COALESCE(SUM(status = 'CANCELLED'), 0),
	    COALESCE(SUM(status <> 'CANCELLED' AND ends_at <= ?), 0),
	    COALESCE(SUM(status <> 'CANCELLED' AND starts_at <= ? AND ends_at > ?), 0),
	    COALESCE(SUM(status <> 'CANCELLED' AND starts_at > ?), 0)
	  FROM auctions`
	err := r.db.QueryRowContext(ctx, q, now, now, now, now).
		Scan(&s.Total, &s.Cancelled, &s.Ended, &s.Live, &s.Scheduled)
	if err != nil {
		return Stats{}, err
	}
	s.Active = s.Live + s.Scheduled
	return s, nil
}

// UpdateParams carries optional fields for a partial auction update. Nil
// pointers leave the column untouched.
type UpdateParams struct {
	Title        *string
	VIN          *string
	StartsAt     *time.Time
	EndsAt       *time.Time
	CurrentPrice *int64
	SoftCloseSec *int
	Status       *model.AuctionStatus
	Raw          []byte
}

// Update applies a partial update and returns the fresh row. Returns
// model.ErrAuctionNotFound when the auction does not exist and ErrNoChange
// when no fields were supplied.
func (r *AuctionRepo) Update(ctx context.Context, id uint64, p UpdateParams) (model.Auction, error) {
	sets := make([]string, 0, 8)
	args := make([]any, 0, 8)
	if p.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *p.Title)
	}
	if p.VIN != nil {
		sets, args = append(sets, "vin = ?"), append(args, nullStr(*p.VIN))
	}
	if p.StartsAt != nil {
		sets, args = append(sets, "starts_at = ?"), append(args, p.StartsAt.UTC())
	}
	if p.EndsAt != nil {
		sets, args = append(sets, "ends_at = ?"), append(args, p.EndsAt.UTC())
	}
	if p.CurrentPrice != nil {
		sets, args = append(sets, "current_price = ?"), append(args, *p.CurrentPrice)
	}
	if p.SoftCloseSec != nil {
		sets, args = append(sets, "soft_close_sec = ?"), append(args, *p.SoftCloseSec)
	}
	if p.Status != nil {
		sets, args = append(sets, "status = ?"), append(args, *p.Status)
	}
	if p.Raw != nil {
		sets, args = append(sets, "raw = ?"), append(args, p.Raw)
	}
	if len(sets) == 0 {
		return model.Auction{}, ErrNoChange
	}
	q := `UPDATE auctions SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, append(args, id)...)
	if err != nil {
		if isDuplicate(err) {
			return model.Auction{}, ErrVINExists
		}
		return model.Auction{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or identical values; disambiguate with a lookup.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return model.Auction{}, gerr
		}
	}
	return r.GetByID(ctx, id)
}

// Cancel marks an auction CANCELLED. Cancellation overrides the
// time-derived phase and excludes the auction from reconciler sweeps.
func (r *AuctionRepo) Cancel(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = ? WHERE id = ?`, model.StatusCancelled, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an auction row. Returns model.ErrAuctionNotFound when the
// row does not exist. Whether deletion is allowed while bids exist is the
// caller's policy.
func (r *AuctionRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrAuctionNotFound
	}
	return nil
}

// SnapshotForUpdateTx reads the bid-relevant auction state under a row lock.
// The FOR UPDATE lock serializes concurrent bid transactions on the same
// auction so the minimum-increment check always sees the committed price.
func (r *AuctionRepo) SnapshotForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.AuctionSnapshot, error) {
	const q = `SELECT id, status, starts_at, ends_at, current_price, soft_close_sec
	           FROM auctions WHERE id = ? FOR UPDATE`
	var s model.AuctionSnapshot
	err := tx.QueryRowContext(ctx, q, id).
		Scan(&s.ID, &s.Status, &s.StartsAt, &s.EndsAt, &s.CurrentPrice, &s.SoftCloseSec)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AuctionSnapshot{}, model.ErrAuctionNotFound
	}
	return s, err
}

// UpdatePriceTx overwrites current_price within the caller's transaction.
func (r *AuctionRepo) UpdatePriceTx(ctx context.Context, tx *sql.Tx, id uint64, price int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE auctions SET current_price = ? WHERE id = ?`, price, id)
	return err
}

// UpdateEndsAtTx persists a soft-close extension within the caller's transaction.
func (r *AuctionRepo) UpdateEndsAtTx(ctx context.Context, tx *sql.Tx, id uint64, endsAt time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE auctions SET ends_at = ? WHERE id = ?`, endsAt.UTC(), id)
	return err
}

// FindDueForLive returns ids of SCHEDULED auctions whose window has opened
// and not yet closed. CANCELLED rows never match.
func (r *AuctionRepo) FindDueForLive(ctx context.Context, now time.Time) ([]uint64, error) {
	const q = `SELECT id FROM auctions WHERE status = ? AND starts_at <= ? AND ends_at > ?`
	return r.queryIDs(ctx, q, model.StatusScheduled, now, now)
}

// FindDueForEnd returns ids of LIVE auctions whose window has closed.
func (r *AuctionRepo) FindDueForEnd(ctx context.Context, now time.Time) ([]uint64, error) {
	const q = `SELECT id FROM auctions WHERE status = ? AND ends_at <= ?`
	return r.queryIDs(ctx, q, model.StatusLive, now)
}

// BulkUpdateStatus sets the status column for all given ids in one statement.
func (r *AuctionRepo) BulkUpdateStatus(ctx context.Context, ids []uint64, status model.AuctionStatus) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (r *AuctionRepo) queryIDs(ctx context.Context, q string, args ...any) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isDuplicate reports whether err is a MySQL unique-constraint violation
// (error 1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
