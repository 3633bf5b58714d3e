// Package sqlite provides a SQLite-backed inventory store.
//
// Each entity row carries the columns the store filters and sorts on, plus
// a doc column holding the full entity encoded with msgpack. The msgpack
// encoding is deliberate: parts of the model are excluded from the JSON
// wire form but must still survive a round trip through the database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"orbit/internal/inventory"
)

// Store is a SQLite-backed inventory.Store implementation.
type Store struct {
	db   *sql.DB
	path string
}

var _ inventory.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create inventory directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeDoc(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode doc: %w", err)
	}
	return data, nil
}

func decodeDoc(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode doc: %w", err)
	}
	return nil
}


func (s *Store) GetItem(ctx context.Context, id string) (*inventory.Item, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM items WHERE uuid = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", id, err)
	}
	var it inventory.Item
	if err := decodeDoc(doc, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) PutItem(ctx context.Context, item inventory.Item) error {
	doc, err := encodeDoc(item)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for item %q: %w", item.UUID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO items (uuid, item_type, location, side, aisle_index, available, scan_id, pos_x, pos_y, width, height, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			item_type = excluded.item_type,
			location = excluded.location,
			side = excluded.side,
			aisle_index = excluded.aisle_index,
			available = excluded.available,
			scan_id = excluded.scan_id,
			pos_x = excluded.pos_x,
			pos_y = excluded.pos_y,
			width = excluded.width,
			height = excluded.height,
			doc = excluded.doc
	`, item.UUID, item.Meta.ItemType, item.Meta.Location, item.Relative.Side,
		item.Meta.AisleIndex, boolInt(item.Meta.Available), item.Meta.ScanID,
		item.Absolute.Position.X, item.Absolute.Position.Y,
		item.Relative.Dimension.X, item.Relative.Dimension.Y, doc)
	if err != nil {
		return fmt.Errorf("put item %q: %w", item.UUID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM item_stack WHERE item_uuid = ?", item.UUID); err != nil {
		return fmt.Errorf("clear stack for item %q: %w", item.UUID, err)
	}
	for _, member := range item.Meta.Stack {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_stack (item_uuid, member_uuid) VALUES (?, ?)
			ON CONFLICT(item_uuid, member_uuid) DO NOTHING
		`, item.UUID, member)
		if err != nil {
			return fmt.Errorf("put stack member %q of item %q: %w", member, item.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item %q: %w", item.UUID, err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE uuid = ?", id); err != nil {
		return fmt.Errorf("delete item %q: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteItemsExceptType(ctx context.Context, keep string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx for item sweep: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT uuid FROM items WHERE item_type != ? ORDER BY uuid", keep)
	if err != nil {
		return nil, fmt.Errorf("list items for sweep: %w", err)
	}
	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan item uuid: %w", err)
		}
		removed = append(removed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items for sweep: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE item_type != ?", keep); err != nil {
		return nil, fmt.Errorf("sweep items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item sweep: %w", err)
	}
	return removed, nil
}

func (s *Store) ListItems(ctx context.Context, q inventory.ItemQuery) ([]inventory.Item, error) {
	where := "1=1"
	var args []any
	if q.ItemType != "" {
		where += " AND item_type = ?"
		args = append(args, q.ItemType)
	}
	if q.Location != "" {
		where += " AND location = ?"
		args = append(args, q.Location)
	}
	if q.Side != "" {
		where += " AND side = ?"
		args = append(args, q.Side)
	}
	if q.AisleIndex != nil {
		where += " AND aisle_index = ?"
		args = append(args, *q.AisleIndex)
	}
	if q.Available != nil {
		where += " AND available = ?"
		args = append(args, boolInt(*q.Available))
	}
	if q.ScanID != "" {
		where += " AND scan_id = ?"
		args = append(args, q.ScanID)
	}
	return s.queryItems(ctx, "SELECT doc FROM items WHERE "+where+" ORDER BY uuid", args...)
}

func (s *Store) FindNearby(ctx context.Context, q inventory.NearbyQuery) ([]inventory.Item, error) {
	dx, dy := q.DX, q.DY
	if dx == 0 {
		dx = inventory.DefaultNearbyDX
	}
	if dy == 0 {
		dy = inventory.DefaultNearbyDY
	}
	where := `aisle_index = ? AND side = ?
		AND pos_x > ? AND pos_x < ?
		AND pos_y > ? AND pos_y < ?`
	args := []any{q.AisleIndex, q.Side, q.CX - dx, q.CX + dx, q.CY - dy, q.CY + dy}
	if q.ItemType != "" {
		where += " AND item_type = ?"
		args = append(args, q.ItemType)
	}
	if q.Location != "" {
		where += " AND location = ?"
		args = append(args, q.Location)
	}
	if q.Available != nil {
		where += " AND available = ?"
		args = append(args, boolInt(*q.Available))
	}
	return s.queryItems(ctx, "SELECT doc FROM items WHERE "+where+" ORDER BY uuid", args...)
}

func (s *Store) FindBestEmpty(ctx context.Context, aisleIndex int, side string, minWidth, minHeight float64) (*inventory.Item, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM items
		WHERE item_type = ? AND aisle_index = ? AND side = ? AND width > ? AND height > ?
		ORDER BY width * height, uuid
		LIMIT 1
	`, inventory.ItemTypeEmpty, aisleIndex, side, minWidth, minHeight).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find best empty: %w", err)
	}
	var it inventory.Item
	if err := decodeDoc(doc, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) FindItemsWithInStack(ctx context.Context, id string) ([]inventory.Item, error) {
	return s.queryItems(ctx, `
		SELECT i.doc FROM items i
		JOIN item_stack st ON st.item_uuid = i.uuid
		WHERE st.member_uuid = ?
		ORDER BY i.uuid
	`, id)
}

func (s *Store) DistinctItemScanIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT scan_id FROM items WHERE scan_id != '' ORDER BY scan_id")
	if err != nil {
		return nil, fmt.Errorf("distinct item scan ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan scan_id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]inventory.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	var out []inventory.Item
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan item doc: %w", err)
		}
		var it inventory.Item
		if err := decodeDoc(doc, &it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) PutBarcode(ctx context.Context, bc inventory.Barcode) error {
	if bc.ID == "" {
		bc.ID = uuid.Must(uuid.NewV7()).String()
	}
	doc, err := encodeDoc(bc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO barcodes (id, data, barcode_type, item_uuid, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			barcode_type = excluded.barcode_type,
			item_uuid = excluded.item_uuid,
			doc = excluded.doc
	`, bc.ID, bc.Meta.Data, bc.Meta.BarcodeType, bc.ItemUUID, doc)
	if err != nil {
		return fmt.Errorf("put barcode %q: %w", bc.ID, err)
	}
	return nil
}

func (s *Store) ListBarcodesByData(ctx context.Context, data string) ([]inventory.Barcode, error) {
	return s.queryBarcodes(ctx, "SELECT doc FROM barcodes WHERE data = ? ORDER BY id", data)
}

func (s *Store) ListBarcodesByAnyData(ctx context.Context, data []string) ([]inventory.Barcode, error) {
	if len(data) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, len(data))
	for i, d := range data {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = d
	}
	return s.queryBarcodes(ctx, "SELECT doc FROM barcodes WHERE data IN ("+placeholders+") ORDER BY id", args...)
}

func (s *Store) FindPrimaryBarcode(ctx context.Context, itemUUID string) (*inventory.Barcode, error) {
	barcodes, err := s.queryBarcodes(ctx, "SELECT doc FROM barcodes WHERE item_uuid = ? ORDER BY id", itemUUID)
	if err != nil {
		return nil, err
	}
	var best *inventory.Barcode
	bestRank := len(inventory.PrimaryBarcodeTypes)
	for i := range barcodes {
		for rank, t := range inventory.PrimaryBarcodeTypes {
			if barcodes[i].Meta.BarcodeType == t && (best == nil || rank < bestRank) {
				best = &barcodes[i]
				bestRank = rank
			}
		}
	}
	return best, nil
}

func (s *Store) DeleteBarcodesByItem(ctx context.Context, itemUUID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM barcodes WHERE item_uuid = ?", itemUUID); err != nil {
		return fmt.Errorf("delete barcodes of item %q: %w", itemUUID, err)
	}
	return nil
}

func (s *Store) DeleteAllBarcodes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM barcodes"); err != nil {
		return fmt.Errorf("delete all barcodes: %w", err)
	}
	return nil
}

func (s *Store) queryBarcodes(ctx context.Context, query string, args ...any) ([]inventory.Barcode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query barcodes: %w", err)
	}
	defer rows.Close()
	var out []inventory.Barcode
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan barcode doc: %w", err)
		}
		var bc inventory.Barcode
		if err := decodeDoc(doc, &bc); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func (s *Store) PutPartialItem(ctx context.Context, p inventory.PartialItem) (string, error) {
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	doc, err := encodeDoc(p)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO partial_items (id, scan_id, aisle_index, side, item_type, confidence, width, pos_x, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scan_id = excluded.scan_id,
			aisle_index = excluded.aisle_index,
			side = excluded.side,
			item_type = excluded.item_type,
			confidence = excluded.confidence,
			width = excluded.width,
			pos_x = excluded.pos_x,
			doc = excluded.doc
	`, p.ID, p.Meta.ScanID, p.Meta.AisleIndex, p.Relative.Side,
		p.Meta.ItemType, p.Meta.Confidence, p.Absolute.Dimension.X, p.Absolute.Position.X, doc)
	if err != nil {
		return "", fmt.Errorf("put partial item %q: %w", p.ID, err)
	}
	return p.ID, nil
}

func (s *Store) PutPartialBarcode(ctx context.Context, bc inventory.Barcode) (string, error) {
	if bc.ID == "" {
		bc.ID = uuid.Must(uuid.NewV7()).String()
	}
	doc, err := encodeDoc(bc)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO partial_barcodes (id, scan_id, aisle_index, side, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scan_id = excluded.scan_id,
			aisle_index = excluded.aisle_index,
			side = excluded.side,
			doc = excluded.doc
	`, bc.ID, bc.Meta.ScanID, bc.Meta.AisleIndex, bc.Relative.Side, doc)
	if err != nil {
		return "", fmt.Errorf("put partial barcode %q: %w", bc.ID, err)
	}
	return bc.ID, nil
}

func (s *Store) ListPartialItems(ctx context.Context, q inventory.PartialItemQuery) ([]inventory.PartialItem, error) {
	where := "aisle_index = ? AND side = ?"
	args := []any{q.AisleIndex, q.Side}
	if q.ScanID != "" {
		where += " AND scan_id = ?"
		args = append(args, q.ScanID)
	}
	if q.ItemType != "" {
		where += " AND item_type = ?"
		args = append(args, q.ItemType)
	}
	if q.MinConfidence > 0 {
		where += " AND confidence >= ?"
		args = append(args, q.MinConfidence)
	}
	if q.MinWidth > 0 {
		where += " AND width >= ?"
		args = append(args, q.MinWidth)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM partial_items WHERE "+where+" ORDER BY pos_x, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query partial items: %w", err)
	}
	defer rows.Close()
	var out []inventory.PartialItem
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan partial item doc: %w", err)
		}
		var p inventory.PartialItem
		if err := decodeDoc(doc, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListPartialBarcodes(ctx context.Context, scanID string, aisleIndex int, side string) ([]inventory.Barcode, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT doc FROM partial_barcodes WHERE scan_id = ? AND aisle_index = ? AND side = ? ORDER BY id",
		scanID, aisleIndex, side)
	if err != nil {
		return nil, fmt.Errorf("query partial barcodes: %w", err)
	}
	defer rows.Close()
	var out []inventory.Barcode
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan partial barcode doc: %w", err)
		}
		var bc inventory.Barcode
		if err := decodeDoc(doc, &bc); err != nil {
			return nil, err
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func (s *Store) DistinctPartialAisles(ctx context.Context, scanID string) ([]int, error) {
	if scanID == "" {
		return s.queryInts(ctx, "SELECT DISTINCT aisle_index FROM partial_items ORDER BY aisle_index")
	}
	return s.queryInts(ctx, "SELECT DISTINCT aisle_index FROM partial_items WHERE scan_id = ? ORDER BY aisle_index", scanID)
}

func (s *Store) DeletePartials(ctx context.Context, scanID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for partial sweep: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM partial_items WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("delete partial items of scan %q: %w", scanID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM partial_barcodes WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("delete partial barcodes of scan %q: %w", scanID, err)
	}
	return tx.Commit()
}

func (s *Store) PutBatch(ctx context.Context, b inventory.RobotBatch) error {
	doc, err := encodeDoc(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO robot_batches (batch_id, doc) VALUES (?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET doc = excluded.doc
	`, b.BatchID, doc)
	if err != nil {
		return fmt.Errorf("put batch %q: %w", b.BatchID, err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (*inventory.RobotBatch, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM robot_batches WHERE batch_id = ?", batchID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %q: %w", batchID, err)
	}
	var b inventory.RobotBatch
	if err := decodeDoc(doc, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) PutJob(ctx context.Context, j inventory.RobotJob) error {
	doc, err := encodeDoc(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO robot_jobs (job_id, doc) VALUES (?, ?)
		ON CONFLICT(job_id) DO UPDATE SET doc = excluded.doc
	`, j.JobID, doc)
	if err != nil {
		return fmt.Errorf("put job %q: %w", j.JobID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*inventory.RobotJob, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM robot_jobs WHERE job_id = ?", jobID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %q: %w", jobID, err)
	}
	var j inventory.RobotJob
	if err := decodeDoc(doc, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) PutScanImage(ctx context.Context, img inventory.ScanImage) (string, error) {
	if img.ID == "" {
		img.ID = uuid.Must(uuid.NewV7()).String()
	}
	doc, err := encodeDoc(img)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_images (id, scan_id, aisle_index, side, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scan_id = excluded.scan_id,
			aisle_index = excluded.aisle_index,
			side = excluded.side,
			doc = excluded.doc
	`, img.ID, img.ScanID, img.AisleIndex, img.Side, doc)
	if err != nil {
		return "", fmt.Errorf("put scan image %q: %w", img.ID, err)
	}
	return img.ID, nil
}

func (s *Store) ListScanImages(ctx context.Context, scanID string, aisleIndex int, side string) ([]inventory.ScanImage, error) {
	where := "scan_id = ? AND aisle_index = ?"
	args := []any{scanID, aisleIndex}
	if side != "" {
		where += " AND side = ?"
		args = append(args, side)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM scan_images WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query scan images: %w", err)
	}
	defer rows.Close()
	var out []inventory.ScanImage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan image doc: %w", err)
		}
		var img inventory.ScanImage
		if err := decodeDoc(doc, &img); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *Store) DistinctScanImageAisles(ctx context.Context, scanID string) ([]int, error) {
	return s.queryInts(ctx, "SELECT DISTINCT aisle_index FROM scan_images WHERE scan_id = ? ORDER BY aisle_index", scanID)
}

func (s *Store) ReplaceRender(ctx context.Context, r inventory.Render) error {
	doc, err := encodeDoc(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO renders (side, aisle_index, doc) VALUES (?, ?, ?)
		ON CONFLICT(side, aisle_index) DO UPDATE SET doc = excluded.doc
	`, r.Meta.Side, r.Meta.AisleIndex, doc)
	if err != nil {
		return fmt.Errorf("put render %s/%d: %w", r.Meta.Side, r.Meta.AisleIndex, err)
	}
	return nil
}

func (s *Store) GetRender(ctx context.Context, side string, aisleIndex int) (*inventory.Render, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM renders WHERE side = ? AND aisle_index = ?", side, aisleIndex).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get render %s/%d: %w", side, aisleIndex, err)
	}
	var r inventory.Render
	if err := decodeDoc(doc, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) queryInts(ctx context.Context, query string, args ...any) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan int: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
