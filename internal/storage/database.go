package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"perpsim/internal/ledger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STORAGE - Durable account snapshots
// ═══════════════════════════════════════════════════════════════════════════════
//
// One snapshot = one account row + the open positions + the full transaction
// log. Decimals and timestamps round-trip exactly. SQLite by default,
// PostgreSQL when the DSN says so.
//
// ═══════════════════════════════════════════════════════════════════════════════

// accountID keys the single account row; the app runs one paper account.
const accountID = 1

type Database struct {
	db *gorm.DB
}

// Models

type AccountRow struct {
	ID        uint            `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:decimal(24,8)"`
	UpdatedAt time.Time
}

type PositionRow struct {
	Symbol     string          `gorm:"primaryKey"`
	Side       string          `gorm:"not null"`
	Quantity   decimal.Decimal `gorm:"type:decimal(24,8)"`
	EntryPrice decimal.Decimal `gorm:"type:decimal(24,8)"`
	Leverage   int
	Margin     decimal.Decimal  `gorm:"type:decimal(24,8)"`
	StopLoss   *decimal.Decimal `gorm:"type:decimal(24,8)"`
	TakeProfit *decimal.Decimal `gorm:"type:decimal(24,8)"`
	OpenedAt   time.Time
}

type TransactionRow struct {
	ID        string          `gorm:"primaryKey"`
	Seq       int             `gorm:"index"` // 0 = newest
	Type      string          `gorm:"not null"`
	Symbol    string          `gorm:"index"`
	Price     decimal.Decimal `gorm:"type:decimal(24,8)"`
	Quantity  decimal.Decimal `gorm:"type:decimal(24,8)"`
	Leverage  int
	Margin    decimal.Decimal  `gorm:"type:decimal(24,8)"`
	PnL       *decimal.Decimal `gorm:"type:decimal(24,8)"`
	Reason    string
	Timestamp time.Time
}

// New opens the store. A postgres:// DSN selects PostgreSQL, anything else is
// treated as an SQLite file path (directories created as needed).
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&AccountRow{}, &PositionRow{}, &TransactionRow{}); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// SaveSnapshot replaces the stored state with snap in one transaction.
func (d *Database) SaveSnapshot(snap ledger.Snapshot) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&AccountRow{}, &PositionRow{}, &TransactionRow{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&AccountRow{ID: accountID, Balance: snap.Balance}).Error; err != nil {
			return err
		}

		for _, pos := range snap.Positions {
			row := PositionRow{
				Symbol:     pos.Symbol,
				Side:       string(pos.Side),
				Quantity:   pos.Quantity,
				EntryPrice: pos.EntryPrice,
				Leverage:   pos.Leverage,
				Margin:     pos.Margin,
				StopLoss:   pos.StopLoss,
				TakeProfit: pos.TakeProfit,
				OpenedAt:   pos.OpenedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		for i, t := range snap.Transactions {
			row := TransactionRow{
				ID:        t.ID,
				Seq:       i,
				Type:      string(t.Type),
				Symbol:    t.Symbol,
				Price:     t.Price,
				Quantity:  t.Quantity,
				Leverage:  t.Leverage,
				Margin:    t.Margin,
				PnL:       t.PnL,
				Reason:    string(t.Reason),
				Timestamp: t.Timestamp,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot restores the stored state. found is false on a fresh store;
// a broken store surfaces as err so the caller can fall back to a seeded
// account.
func (d *Database) LoadSnapshot() (snap ledger.Snapshot, found bool, err error) {
	var account AccountRow
	res := d.db.First(&account, accountID)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return ledger.Snapshot{}, false, nil
	}
	if res.Error != nil {
		return ledger.Snapshot{}, false, res.Error
	}

	snap.Balance = account.Balance
	snap.Positions = make(map[string]*ledger.Position)

	var positions []PositionRow
	if err := d.db.Find(&positions).Error; err != nil {
		return ledger.Snapshot{}, false, err
	}
	for _, row := range positions {
		snap.Positions[row.Symbol] = &ledger.Position{
			Symbol:     row.Symbol,
			Side:       ledger.Side(row.Side),
			Quantity:   row.Quantity,
			EntryPrice: row.EntryPrice,
			Leverage:   row.Leverage,
			Margin:     row.Margin,
			StopLoss:   row.StopLoss,
			TakeProfit: row.TakeProfit,
			OpenedAt:   row.OpenedAt,
		}
	}

	var transactions []TransactionRow
	if err := d.db.Order("seq asc").Find(&transactions).Error; err != nil {
		return ledger.Snapshot{}, false, err
	}
	for _, row := range transactions {
		snap.Transactions = append(snap.Transactions, ledger.Transaction{
			ID:        row.ID,
			Type:      ledger.TxType(row.Type),
			Symbol:    row.Symbol,
			Price:     row.Price,
			Quantity:  row.Quantity,
			Leverage:  row.Leverage,
			Margin:    row.Margin,
			PnL:       row.PnL,
			Reason:    ledger.CloseReason(row.Reason),
			Timestamp: row.Timestamp,
		})
	}

	return snap, true, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
