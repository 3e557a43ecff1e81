package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harambee-dev/harambee/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SQLiteStore implements Storage on a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

// NewSQLiteStore opens (or creates) the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLiteStore{db: db, q: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		date DATETIME NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		reverses_id TEXT,
		reversed_by_id TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS journal_lines (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(entry_id) REFERENCES journal_entries(id),
		FOREIGN KEY(account_id) REFERENCES accounts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_lines_account ON journal_lines(account_id);
	CREATE TABLE IF NOT EXISTS loan_products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		frequency TEXT NOT NULL,
		min_amount TEXT NOT NULL,
		max_amount TEXT NOT NULL,
		min_term_months INTEGER NOT NULL,
		max_term_months INTEGER NOT NULL,
		processing_fee_rate TEXT NOT NULL,
		processing_timing TEXT NOT NULL,
		insurance_rate TEXT NOT NULL,
		insurance_timing TEXT NOT NULL,
		shares_multiplier TEXT NOT NULL,
		min_shares TEXT NOT NULL,
		allow_multiple INTEGER NOT NULL,
		require_standing INTEGER NOT NULL,
		min_guarantors INTEGER NOT NULL,
		max_guarantor_amount TEXT NOT NULL,
		collateral_ltv TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		product_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		principal TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		status TEXT NOT NULL,
		schedule_version INTEGER NOT NULL DEFAULT 0,
		reject_reason TEXT NOT NULL DEFAULT '',
		applied_at DATETIME NOT NULL,
		approved_at DATETIME,
		disbursed_at DATETIME,
		closed_at DATETIME,
		FOREIGN KEY(product_id) REFERENCES loan_products(id)
	);
	CREATE TABLE IF NOT EXISTS instalments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		number INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fee TEXT NOT NULL,
		insurance TEXT NOT NULL,
		penalty TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		status TEXT NOT NULL,
		UNIQUE(loan_id, version, number),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS guarantors (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		relationship TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		consent TEXT NOT NULL,
		consent_at DATETIME,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		reference TEXT NOT NULL,
		method TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied TEXT NOT NULL,
		overpaid TEXT NOT NULL,
		entry_id TEXT,
		received_at DATETIME NOT NULL,
		UNIQUE(loan_id, reference),
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS restructures (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		type TEXT NOT NULL,
		old_version INTEGER NOT NULL,
		new_version INTEGER NOT NULL,
		effective_date DATETIME NOT NULL,
		applied_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InTransaction runs fn against a transaction-bound copy of the store.
func (s *SQLiteStore) InTransaction(fn func(Storage) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	txStore := &SQLiteStore{db: s.db, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullUUID maps uuid.Nil to SQL NULL.
func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func scanUUID(s sql.NullString) (uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s.String)
}

func scanDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- Accounts ---

func (s *SQLiteStore) CreateAccount(a *model.Account) error {
	_, err := s.q.Exec(
		`INSERT INTO accounts (id, code, name, type, parent_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Code, a.Name, string(a.Type), nullUUID(a.ParentID), a.Active, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating account %d: %w", a.Code, err)
	}
	return nil
}

const accountCols = `id, code, name, type, parent_id, active, created_at`

func (s *SQLiteStore) scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var (
		a       model.Account
		idStr   string
		typeStr string
		parent  sql.NullString
	)
	if err := row.Scan(&idStr, &a.Code, &a.Name, &typeStr, &parent, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parsing account id: %w", err)
	}
	if a.ParentID, err = scanUUID(parent); err != nil {
		return nil, fmt.Errorf("parsing parent id: %w", err)
	}
	a.Type = model.AccountType(typeStr)
	return &a, nil
}

func (s *SQLiteStore) GetAccount(id uuid.UUID) (*model.Account, error) {
	row := s.q.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE id = ?`, id.String())
	a, err := s.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLiteStore) GetAccountByCode(code int) (*model.Account, error) {
	row := s.q.QueryRow(`SELECT `+accountCols+` FROM accounts WHERE code = ?`, code)
	a, err := s.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account code %d: %w", code, ErrNotFound)
	}
	return a, err
}

func (s *SQLiteStore) ListAccounts() ([]*model.Account, error) {
	rows, err := s.q.Query(`SELECT ` + accountCols + ` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) UpdateAccount(a *model.Account) error {
	res, err := s.q.Exec(
		`UPDATE accounts SET code = ?, name = ?, type = ?, parent_id = ?, active = ? WHERE id = ?`,
		a.Code, a.Name, string(a.Type), nullUUID(a.ParentID), a.Active, a.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", a.Code, err)
	}
	return rowsAffected(res, "account")
}

func (s *SQLiteStore) DeleteAccount(id uuid.UUID) error {
	res, err := s.q.Exec(`DELETE FROM accounts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return rowsAffected(res, "account")
}

func (s *SQLiteStore) AccountHasPostings(id uuid.UUID) (bool, error) {
	var n int
	err := s.q.QueryRow(
		`SELECT COUNT(1) FROM journal_lines WHERE account_id = ?`, id.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("counting postings: %w", err)
	}
	return n > 0, nil
}

func rowsAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// --- Journal ---

func (s *SQLiteStore) CreateJournalEntry(e *model.JournalEntry) error {
	return s.InTransaction(func(tx Storage) error {
		ts := tx.(*SQLiteStore)
		_, err := ts.q.Exec(
			`INSERT INTO journal_entries (id, reference, date, description, status, reverses_id, reversed_by_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.Reference, e.Date, e.Description, string(e.Status),
			nullUUID(e.ReversesID), nullUUID(e.ReversedByID), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating entry %s: %w", e.Reference, err)
		}
		for i := range e.Lines {
			l := &e.Lines[i]
			_, err := ts.q.Exec(
				`INSERT INTO journal_lines (id, entry_id, account_id, debit, credit, memo)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				l.ID.String(), e.ID.String(), l.AccountID.String(),
				l.Debit.String(), l.Credit.String(), l.Memo,
			)
			if err != nil {
				return fmt.Errorf("creating line %d of %s: %w", i+1, e.Reference, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetJournalEntry(id uuid.UUID) (*model.JournalEntry, error) {
	row := s.q.QueryRow(
		`SELECT id, reference, date, description, status, reverses_id, reversed_by_id, created_at
		 FROM journal_entries WHERE id = ?`, id.String(),
	)
	var (
		e                  model.JournalEntry
		idStr, statusStr   string
		reverses, reversed sql.NullString
	)
	err := row.Scan(&idStr, &e.Reference, &e.Date, &e.Description, &statusStr, &reverses, &reversed, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry: %w", err)
	}
	if e.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	e.Status = model.EntryStatus(statusStr)
	if e.ReversesID, err = scanUUID(reverses); err != nil {
		return nil, err
	}
	if e.ReversedByID, err = scanUUID(reversed); err != nil {
		return nil, err
	}

	rows, err := s.q.Query(
		`SELECT id, entry_id, account_id, debit, credit, memo
		 FROM journal_lines WHERE entry_id = ? ORDER BY rowid`, id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l                   model.JournalLine
			lid, eid, aid, d, c string
		)
		if err := rows.Scan(&lid, &eid, &aid, &d, &c, &l.Memo); err != nil {
			return nil, err
		}
		if l.ID, err = uuid.Parse(lid); err != nil {
			return nil, err
		}
		if l.EntryID, err = uuid.Parse(eid); err != nil {
			return nil, err
		}
		if l.AccountID, err = uuid.Parse(aid); err != nil {
			return nil, err
		}
		if l.Debit, err = scanDecimal(d); err != nil {
			return nil, err
		}
		if l.Credit, err = scanDecimal(c); err != nil {
			return nil, err
		}
		e.Lines = append(e.Lines, l)
	}
	return &e, rows.Err()
}

func (s *SQLiteStore) MarkEntryReversed(originalID, reversalID uuid.UUID) error {
	res, err := s.q.Exec(
		`UPDATE journal_entries SET status = ?, reversed_by_id = ? WHERE id = ?`,
		string(model.EntryStatusReversed), reversalID.String(), originalID.String(),
	)
	if err != nil {
		return fmt.Errorf("marking entry reversed: %w", err)
	}
	return rowsAffected(res, "entry")
}

func (s *SQLiteStore) NextEntrySeq(year, month int) (int, error) {
	// Compare the numeric suffix, not the reference string: once a month
	// passes 9999 entries the wider suffix sorts below "9999" lexically.
	prefix := fmt.Sprintf("JE-%04d-%02d-", year, month)
	var maxSeq sql.NullInt64
	err := s.q.QueryRow(
		`SELECT MAX(CAST(SUBSTR(reference, ?) AS INTEGER)) FROM journal_entries WHERE reference LIKE ?`,
		len(prefix)+1, prefix+"%",
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("finding max entry sequence: %w", err)
	}
	if !maxSeq.Valid {
		return 1, nil
	}
	return int(maxSeq.Int64) + 1, nil
}

func (s *SQLiteStore) ListPostings(accountID uuid.UUID, from, to time.Time) ([]model.Posting, error) {
	rows, err := s.q.Query(
		`SELECT e.id, e.reference, e.date, l.account_id, l.debit, l.credit, l.memo
		 FROM journal_lines l JOIN journal_entries e ON l.entry_id = e.id
		 WHERE l.account_id = ? AND e.status != ? AND e.date >= ? AND e.date <= ?
		 ORDER BY e.date, e.reference`,
		accountID.String(), string(model.EntryStatusDraft), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing postings: %w", err)
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		var (
			p              model.Posting
			eid, aid, d, c string
		)
		if err := rows.Scan(&eid, &p.Reference, &p.Date, &aid, &d, &c, &p.Memo); err != nil {
			return nil, err
		}
		if p.EntryID, err = uuid.Parse(eid); err != nil {
			return nil, err
		}
		if p.AccountID, err = uuid.Parse(aid); err != nil {
			return nil, err
		}
		if p.Debit, err = scanDecimal(d); err != nil {
			return nil, err
		}
		if p.Credit, err = scanDecimal(c); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *SQLiteStore) SumPostings(accountID uuid.UUID, asOf time.Time) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := s.q.Query(
		`SELECT l.debit, l.credit
		 FROM journal_lines l JOIN journal_entries e ON l.entry_id = e.id
		 WHERE l.account_id = ? AND e.status != ? AND e.date <= ?`,
		accountID.String(), string(model.EntryStatusDraft), asOf,
	)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing postings: %w", err)
	}
	defer rows.Close()

	// Sum in decimal, not SQL, so TEXT amounts never round.
	debits, credits := decimal.Zero, decimal.Zero
	for rows.Next() {
		var d, c string
		if err := rows.Scan(&d, &c); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		dd, err := scanDecimal(d)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		cd, err := scanDecimal(c)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		debits = debits.Add(dd)
		credits = credits.Add(cd)
	}
	return debits, credits, rows.Err()
}
