// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/auction-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrItemNotFound возвращается, если лот не найден.
var (
	ErrItemNotFound = errors.New("item not found")
	// ErrActionNotFound возвращается, если действие не найдено.
	ErrActionNotFound = errors.New("action not found")
	// ErrTimerNotFound возвращается, если таймер не найден.
	ErrTimerNotFound = errors.New("timer not found")
	// ErrDropNotFound возвращается, если дроп не найден.
	ErrDropNotFound = errors.New("drop not found")
	// ErrVersionConflict возвращается при конкурентном изменении записи:
	// версия в БД не совпала с версией, прочитанной в начале операции.
	ErrVersionConflict = errors.New("version conflict")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность базы данных.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const itemColumns = `id, name, sale_type, status, start_price, buy_price, buyer_id, buy_date,
	curr_bid, prev_bids, bidder_ids, number_of_bids, drop_expire_date,
	purchase_reqs, number_of_purchase_reqs, drop_id, version`

func scanItem(row pgx.Row) (*model.Item, error) {
	var (
		it           model.Item
		currBid      []byte
		prevBids     []byte
		bidderIDs    []byte
		purchaseReqs []byte
	)

	err := row.Scan(&it.ID, &it.Name, &it.SaleType, &it.Status, &it.StartPrice, &it.BuyPrice,
		&it.BuyerID, &it.BuyDate, &currBid, &prevBids, &bidderIDs, &it.NumberOfBids,
		&it.DropExpireDate, &purchaseReqs, &it.NumberOfPurchaseReqs, &it.DropID, &it.Version)
	if err != nil {
		return nil, err
	}

	if len(currBid) > 0 {
		var b model.Bid
		if err := json.Unmarshal(currBid, &b); err != nil {
			return nil, fmt.Errorf("unmarshal curr_bid: %w", err)
		}
		it.CurrBid = &b
	}
	if err := json.Unmarshal(prevBids, &it.PrevBids); err != nil {
		return nil, fmt.Errorf("unmarshal prev_bids: %w", err)
	}
	if err := json.Unmarshal(bidderIDs, &it.BidderIDs); err != nil {
		return nil, fmt.Errorf("unmarshal bidder_ids: %w", err)
	}
	if err := json.Unmarshal(purchaseReqs, &it.PurchaseReqs); err != nil {
		return nil, fmt.Errorf("unmarshal purchase_reqs: %w", err)
	}

	return &it, nil
}

func marshalItemFields(it *model.Item) (currBid, prevBids, bidderIDs, purchaseReqs []byte, err error) {
	if it.CurrBid != nil {
		currBid, err = json.Marshal(it.CurrBid)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal curr_bid: %w", err)
		}
	}

	if it.PrevBids == nil {
		it.PrevBids = []model.Bid{}
	}
	prevBids, err = json.Marshal(it.PrevBids)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal prev_bids: %w", err)
	}

	if it.BidderIDs == nil {
		it.BidderIDs = []string{}
	}
	bidderIDs, err = json.Marshal(it.BidderIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal bidder_ids: %w", err)
	}

	if it.PurchaseReqs == nil {
		it.PurchaseReqs = []model.PurchaseRequest{}
	}
	purchaseReqs, err = json.Marshal(it.PurchaseReqs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal purchase_reqs: %w", err)
	}

	return currBid, prevBids, bidderIDs, purchaseReqs, nil
}

// GetItem возвращает лот по идентификатору.
func (r *PostgresRepository) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return it, nil
}

// CreateItem сохраняет новый лот.
func (r *PostgresRepository) CreateItem(ctx context.Context, it *model.Item) error {
	currBid, prevBids, bidderIDs, purchaseReqs, err := marshalItemFields(it)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO items (id, name, sale_type, status, start_price, buy_price, buyer_id, buy_date,
			curr_bid, prev_bids, bidder_ids, number_of_bids, drop_expire_date,
			purchase_reqs, number_of_purchase_reqs, drop_id, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11::jsonb, $12, $13, $14::jsonb, $15, $16, 1)`,
		it.ID, it.Name, string(it.SaleType), string(it.Status), it.StartPrice, it.BuyPrice,
		it.BuyerID, it.BuyDate, currBid, prevBids, bidderIDs, it.NumberOfBids,
		it.DropExpireDate, purchaseReqs, it.NumberOfPurchaseReqs, it.DropID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	it.Version = 1
	return nil
}

// UpdateItem записывает лот по условию совпадения версии (compare-and-swap).
// При конкурентном изменении возвращает ErrVersionConflict; при успехе
// версия в переданной структуре увеличивается.
func (r *PostgresRepository) UpdateItem(ctx context.Context, it *model.Item) error {
	currBid, prevBids, bidderIDs, purchaseReqs, err := marshalItemFields(it)
	if err != nil {
		return err
	}

	var cmdTag pgconn.CommandTag
	err = r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE items SET
				name = $2, sale_type = $3, status = $4, start_price = $5, buy_price = $6,
				buyer_id = $7, buy_date = $8, curr_bid = $9::jsonb, prev_bids = $10::jsonb,
				bidder_ids = $11::jsonb, number_of_bids = $12, drop_expire_date = $13,
				purchase_reqs = $14::jsonb, number_of_purchase_reqs = $15, drop_id = $16,
				version = version + 1
			 WHERE id = $1 AND version = $17`,
			it.ID, it.Name, string(it.SaleType), string(it.Status), it.StartPrice, it.BuyPrice,
			it.BuyerID, it.BuyDate, currBid, prevBids, bidderIDs, it.NumberOfBids,
			it.DropExpireDate, purchaseReqs, it.NumberOfPurchaseReqs, it.DropID, it.Version)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	it.Version++
	return nil
}

// ActivateSetupItems переводит все лоты из статуса Setup в Available одним запросом.
// Возвращает количество активированных лотов.
func (r *PostgresRepository) ActivateSetupItems(ctx context.Context) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE items SET status = $1, version = version + 1 WHERE status = $2`,
		string(model.ItemStatusAvailable), string(model.ItemStatusSetup))
	if err != nil {
		return 0, fmt.Errorf("activate items: %w", err)
	}

	return cmdTag.RowsAffected(), nil
}

// CreateAction сохраняет новое действие.
func (r *PostgresRepository) CreateAction(ctx context.Context, a *model.Action) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO actions (id, action_type, status, action_result, item_id, item_name,
			user_id, nickname, amount, max_amount, ref_action_id, created_date, processed_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, string(a.Type), string(a.Status), string(a.Result), a.ItemID, a.ItemName,
		a.UserID, a.Nickname, a.Amount, a.MaxAmount, a.RefActionID, a.CreatedDate, a.ProcessedDate)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

const actionColumns = `id, action_type, status, action_result, item_id, item_name,
	user_id, nickname, amount, max_amount, ref_action_id, created_date, processed_date`

func scanAction(row pgx.Row) (*model.Action, error) {
	var a model.Action
	err := row.Scan(&a.ID, &a.Type, &a.Status, &a.Result, &a.ItemID, &a.ItemName,
		&a.UserID, &a.Nickname, &a.Amount, &a.MaxAmount, &a.RefActionID, &a.CreatedDate, &a.ProcessedDate)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAction возвращает действие по идентификатору.
func (r *PostgresRepository) GetAction(ctx context.Context, id string) (*model.Action, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE id = $1`, id)

	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}

	return a, nil
}

// GetActionsForDispatch возвращает созданные действия маршрутизируемых типов
// в порядке их поступления.
func (r *PostgresRepository) GetActionsForDispatch(ctx context.Context, limit int) ([]model.Action, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+actionColumns+`
		 FROM actions
		 WHERE status = $1 AND action_type = ANY($2)
		 ORDER BY created_date
		 LIMIT $3`,
		string(model.ActionStatusCreated),
		[]string{
			string(model.ActionTypeBid),
			string(model.ActionTypePurchaseRequest),
			string(model.ActionTypeAcceptRequest),
		},
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select actions for dispatch: %w", err)
	}
	defer rows.Close()

	var res []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// FinalizeAction переводит действие из Created или Queued в терминальный статус
// Processed одним условным обновлением. Возвращает false, если действие уже
// было финализировано другой доставкой.
func (r *PostgresRepository) FinalizeAction(ctx context.Context, id string, result model.ActionResult, processedDate time.Time) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE actions SET status = $2, action_result = $3, processed_date = $4
		 WHERE id = $1 AND status IN ($5, $6)`,
		id, string(model.ActionStatusProcessed), string(result), processedDate,
		string(model.ActionStatusCreated), string(model.ActionStatusQueued))
	if err != nil {
		return false, fmt.Errorf("finalize action: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// QueueAction переводит действие из Created в Queued для ручной обработки.
func (r *PostgresRepository) QueueAction(ctx context.Context, id string) (bool, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE actions SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(model.ActionStatusQueued), string(model.ActionStatusCreated))
	if err != nil {
		return false, fmt.Errorf("queue action: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// UpdateActionResult корректирует итог уже обработанного действия
// (например, вытесненная ставка получает Outbid).
func (r *PostgresRepository) UpdateActionResult(ctx context.Context, id string, result model.ActionResult) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE actions SET action_result = $2 WHERE id = $1`,
		id, string(result))
	if err != nil {
		return fmt.Errorf("update action result: %w", err)
	}
	return nil
}

// UpsertTimer создаёт таймер или сдвигает срок существующего.
func (r *PostgresRepository) UpsertTimer(ctx context.Context, t *model.Timer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO timers (id, item_id, drop_id, expire_date, remaining_seconds)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET expire_date = $4, remaining_seconds = $5`,
		t.ID, t.ItemID, t.DropID, t.ExpireDate, t.RemainingSeconds)
	if err != nil {
		return fmt.Errorf("upsert timer: %w", err)
	}
	return nil
}

// GetTimers возвращает все активные таймеры.
func (r *PostgresRepository) GetTimers(ctx context.Context) ([]model.Timer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, item_id, drop_id, expire_date, remaining_seconds FROM timers ORDER BY expire_date`)
	if err != nil {
		return nil, fmt.Errorf("select timers: %w", err)
	}
	defer rows.Close()

	var res []model.Timer
	for rows.Next() {
		var t model.Timer
		if err := rows.Scan(&t.ID, &t.ItemID, &t.DropID, &t.ExpireDate, &t.RemainingSeconds); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateTimerRemaining записывает пересчитанный остаток секунд.
func (r *PostgresRepository) UpdateTimerRemaining(ctx context.Context, id string, seconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE timers SET remaining_seconds = $2 WHERE id = $1`,
		id, seconds)
	if err != nil {
		return fmt.Errorf("update timer remaining: %w", err)
	}
	return nil
}

// DeleteTimer удаляет таймер. Удаление отсутствующего таймера не является ошибкой.
func (r *PostgresRepository) DeleteTimer(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM timers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

// GetDrop возвращает дроп по идентификатору.
func (r *PostgresRepository) GetDrop(ctx context.Context, id string) (*model.Drop, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, status, start_date, task_id, version FROM drops WHERE id = $1`, id)

	var d model.Drop
	err := row.Scan(&d.ID, &d.Name, &d.Status, &d.StartDate, &d.TaskID, &d.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDropNotFound
		}
		return nil, fmt.Errorf("get drop: %w", err)
	}

	return &d, nil
}

// GetDropsForScheduling возвращает дропы, ожидающие действий жизненного цикла:
// постановки задачи планировщику или запуска отсчёта.
func (r *PostgresRepository) GetDropsForScheduling(ctx context.Context) ([]model.Drop, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, status, start_date, task_id, version
		 FROM drops
		 WHERE status IN ($1, $2)
		 ORDER BY start_date`,
		string(model.DropStatusScheduling),
		string(model.DropStatusStartCountdown))
	if err != nil {
		return nil, fmt.Errorf("select drops: %w", err)
	}
	defer rows.Close()

	var res []model.Drop
	for rows.Next() {
		var d model.Drop
		if err := rows.Scan(&d.ID, &d.Name, &d.Status, &d.StartDate, &d.TaskID, &d.Version); err != nil {
			return nil, fmt.Errorf("scan drop: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateDrop записывает дроп по условию совпадения версии (compare-and-swap).
func (r *PostgresRepository) UpdateDrop(ctx context.Context, d *model.Drop) error {
	var cmdTag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		cmdTag, execErr = r.pool.Exec(ctx,
			`UPDATE drops SET name = $2, status = $3, start_date = $4, task_id = $5, version = version + 1
			 WHERE id = $1 AND version = $6`,
			d.ID, d.Name, string(d.Status), d.StartDate, d.TaskID, d.Version)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update drop: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	d.Version++
	return nil
}
