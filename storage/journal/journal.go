package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flashliquidity/core/events"
	"flashliquidity/observability"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Entry is one committed operation.
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"index;not null" json:"type"`
	Subject    string    `gorm:"index" json:"subject,omitempty"`
	Kind       string    `gorm:"index" json:"kind,omitempty"`
	LoanID     string    `gorm:"index" json:"loanId,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() map[string]string {
	out := map[string]string{}
	if e.Attributes != "" {
		_ = json.Unmarshal([]byte(e.Attributes), &out)
	}
	return out
}

// MarshalJSON includes the decoded attributes.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	return json.Marshal(struct {
		plain
		Attrs map[string]string `json:"attributes"`
	}{plain: plain(e), Attrs: e.Attrs()})
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type     string
	Subject  string
	Kind     string
	LoanID   string
	BeforeID uint
	Limit    int
}

// Journal is an append-only history of committed operations.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the journal database and migrates its schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, logger: slog.Default()}, nil
}

// SetLogger overrides the logger used to report failed writes from Emit.
func (j *Journal) SetLogger(l *slog.Logger) {
	if j == nil || l == nil {
		return
	}
	j.logger = l
}

func entryFor(ev events.Event) (*Entry, error) {
	attrs := events.AttributesOf(ev)
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	subject := attrs["owner"]
	if subject == "" {
		subject = attrs["borrower"]
	}
	if subject == "" {
		subject = attrs["admin"]
	}
	return &Entry{
		Type:       ev.EventType(),
		Subject:    subject,
		Kind:       attrs["kind"],
		LoanID:     attrs["loanId"],
		Attributes: string(raw),
	}, nil
}

// Record appends ev to the journal.
func (j *Journal) Record(ctx context.Context, ev events.Event) error {
	if j == nil || ev == nil {
		return nil
	}
	entry, err := entryFor(ev)
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", ev.EventType(), err)
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("journal: insert %s: %w", ev.EventType(), err)
	}
	return nil
}

// Emit implements events.Emitter. Write failures are logged, not returned,
// because the operation that produced ev has already committed.
func (j *Journal) Emit(ev events.Event) {
	if j == nil {
		return
	}
	if err := j.Record(context.Background(), ev); err != nil {
		observability.FlashLoan().RecordJournalFailure()
		j.logger.Error("journal write failed", slog.String("event", ev.EventType()), slog.Any("error", err))
	}
}

// List returns entries newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := j.db.WithContext(ctx).Model(&Entry{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.LoanID != "" {
		q = q.Where("loan_id = ?", f.LoanID)
	}
	if f.BeforeID > 0 {
		q = q.Where("id < ?", f.BeforeID)
	}
	var out []Entry
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
