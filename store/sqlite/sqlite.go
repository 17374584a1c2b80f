/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  contentieux.Store / contentieux.TxStore
  mandat.Store
  referentiel.Store

ATOMICITY:
  WithTx wraps a group of writes in a single database transaction. The
  service layer uses it so "create affaire + first encaissement" and
  "record payment + update status" roll back together.

SINGLE-ACTIVE-MANDATE INVARIANT:
  Enforced at the data layer with a partial unique index on
  mandats(statut) WHERE statut = 'ACTIF', plus an atomic swap inside
  ActivateMandat. Two concurrent activations serialize on the database;
  one of them wins, neither leaves two ACTIF rows.

STORAGE CONVENTIONS:
  - Monetary amounts are stored as decimal strings, never floats
  - Dates are stored as YYYY-MM-DD text
  - SQLite is opened with WAL and foreign keys on

SEE ALSO:
  - contentieux/store.go: interface contracts
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/referentiel"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same query code
// serves direct calls and WithTx groups.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Fiscal mandates
	CREATE TABLE IF NOT EXISTS mandats (
		numero TEXT PRIMARY KEY,
		libelle TEXT,
		date_debut TEXT NOT NULL,
		date_fin TEXT NOT NULL,
		statut TEXT NOT NULL DEFAULT 'BROUILLON',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one ACTIF mandate system-wide. Activation swaps
	-- inside a transaction; this index makes a race lose loudly instead
	-- of leaving two active periods.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_mandats_actif_unique
		ON mandats(statut) WHERE statut = 'ACTIF';

	-- Offenders
	CREATE TABLE IF NOT EXISTS contrevenants (
		code TEXT PRIMARY KEY,
		nom TEXT NOT NULL,
		type TEXT NOT NULL,
		telephone TEXT,
		adresse TEXT,
		created_at TEXT NOT NULL
	);

	-- Case files. Never deleted; only statut changes after creation.
	CREATE TABLE IF NOT EXISTS affaires (
		numero TEXT PRIMARY KEY,
		date_creation TEXT NOT NULL,
		montant_total TEXT NOT NULL,
		statut TEXT NOT NULL,
		code_contrevenant TEXT NOT NULL,
		code_bureau TEXT,
		code_service TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_affaires_date_creation
		ON affaires(date_creation);
	CREATE INDEX IF NOT EXISTS idx_affaires_statut
		ON affaires(statut);

	-- Fine lines attached to a case
	CREATE TABLE IF NOT EXISTS contraventions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		numero_affaire TEXT NOT NULL REFERENCES affaires(numero),
		code_contravention TEXT,
		libelle TEXT NOT NULL,
		montant TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contraventions_affaire
		ON contraventions(numero_affaire);

	-- Agent assignments on a case
	CREATE TABLE IF NOT EXISTS acteurs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		numero_affaire TEXT NOT NULL REFERENCES affaires(numero),
		code_agent TEXT NOT NULL,
		role TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_acteurs_affaire
		ON acteurs(numero_affaire);

	-- Payments. Status transitions only; no deletes.
	CREATE TABLE IF NOT EXISTS encaissements (
		reference TEXT PRIMARY KEY,
		numero_affaire TEXT NOT NULL REFERENCES affaires(numero),
		date_encaissement TEXT NOT NULL,
		montant TEXT NOT NULL,
		mode TEXT NOT NULL,
		code_banque TEXT,
		numero_cheque TEXT,
		statut TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_encaissements_affaire
		ON encaissements(numero_affaire, date_encaissement);
	CREATE INDEX IF NOT EXISTS idx_encaissements_statut
		ON encaissements(statut);
	CREATE INDEX IF NOT EXISTS idx_encaissements_date
		ON encaissements(date_encaissement);

	-- Reference data, keyed by (kind, code)
	CREATE TABLE IF NOT EXISTS referentiels (
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		libelle TEXT NOT NULL,
		description TEXT,
		actif BOOLEAN NOT NULL DEFAULT TRUE,
		montant_base TEXT,
		PRIMARY KEY (kind, code)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (contentieux.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(contentieux.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes contentieux.Store calls through an open transaction.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveAffaire(ctx context.Context, a contentieux.Affaire) error {
	return ts.parent.saveAffaire(ctx, ts.tx, a)
}

func (ts *txStore) GetAffaire(ctx context.Context, numero string) (contentieux.Affaire, error) {
	return ts.parent.getAffaire(ctx, ts.tx, numero)
}

func (ts *txStore) ListAffaires(ctx context.Context) ([]contentieux.Affaire, error) {
	return ts.parent.listAffaires(ctx, ts.tx)
}

func (ts *txStore) UpdateAffaireStatut(ctx context.Context, numero string, statut contentieux.StatutAffaire) error {
	return ts.parent.updateAffaireStatut(ctx, ts.tx, numero, statut)
}

func (ts *txStore) SaveEncaissement(ctx context.Context, e contentieux.Encaissement) error {
	return ts.parent.saveEncaissement(ctx, ts.tx, e)
}

func (ts *txStore) GetEncaissement(ctx context.Context, reference string) (contentieux.Encaissement, error) {
	return ts.parent.getEncaissement(ctx, ts.tx, reference)
}

func (ts *txStore) ListEncaissements(ctx context.Context, numeroAffaire string) ([]contentieux.Encaissement, error) {
	return ts.parent.listEncaissements(ctx, ts.tx, numeroAffaire)
}

func (ts *txStore) UpdateEncaissementStatut(ctx context.Context, reference string, statut contentieux.StatutEncaissement) error {
	return ts.parent.updateEncaissementStatut(ctx, ts.tx, reference, statut)
}

func (ts *txStore) SaveContrevenant(ctx context.Context, c contentieux.Contrevenant) error {
	return ts.parent.saveContrevenant(ctx, ts.tx, c)
}

func (ts *txStore) GetContrevenant(ctx context.Context, code string) (contentieux.Contrevenant, error) {
	return ts.parent.getContrevenant(ctx, ts.tx, code)
}

// =============================================================================
// AFFAIRES (contentieux.Store interface)
// =============================================================================

func (s *Store) SaveAffaire(ctx context.Context, a contentieux.Affaire) error {
	// A standalone save is still atomic across the three tables.
	return s.WithTx(ctx, func(st contentieux.Store) error {
		return st.SaveAffaire(ctx, a)
	})
}

func (s *Store) saveAffaire(ctx context.Context, db querier, a contentieux.Affaire) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO affaires
		(numero, date_creation, montant_total, statut, code_contrevenant, code_bureau, code_service, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Numero,
		a.DateCreation.String(),
		a.MontantTotal.String(),
		string(a.Statut),
		a.CodeContrevenant,
		a.CodeBureau,
		a.CodeService,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert affaire %s: %w", a.Numero, err)
	}

	for _, l := range a.Contraventions {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO contraventions (numero_affaire, code_contravention, libelle, montant)
			VALUES (?, ?, ?, ?)`,
			a.Numero, l.CodeContravention, l.Libelle, l.Montant.String(),
		); err != nil {
			return fmt.Errorf("failed to insert contravention: %w", err)
		}
	}

	for _, act := range a.Acteurs {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO acteurs (numero_affaire, code_agent, role)
			VALUES (?, ?, ?)`,
			a.Numero, act.CodeAgent, string(act.Role),
		); err != nil {
			return fmt.Errorf("failed to insert acteur: %w", err)
		}
	}

	return nil
}

func (s *Store) GetAffaire(ctx context.Context, numero string) (contentieux.Affaire, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAffaire(ctx, s.db, numero)
}

func (s *Store) getAffaire(ctx context.Context, db querier, numero string) (contentieux.Affaire, error) {
	row := db.QueryRowContext(ctx, `
		SELECT numero, date_creation, montant_total, statut, code_contrevenant,
		       code_bureau, code_service, created_at
		FROM affaires WHERE numero = ?`, numero)

	a, err := scanAffaire(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contentieux.Affaire{}, contentieux.ErrAffaireInconnue
	}
	if err != nil {
		return contentieux.Affaire{}, err
	}

	if a.Contraventions, err = s.loadContraventions(ctx, db, numero); err != nil {
		return contentieux.Affaire{}, err
	}
	if a.Acteurs, err = s.loadActeurs(ctx, db, numero); err != nil {
		return contentieux.Affaire{}, err
	}
	return a, nil
}

func (s *Store) ListAffaires(ctx context.Context) ([]contentieux.Affaire, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAffaires(ctx, s.db)
}

func (s *Store) listAffaires(ctx context.Context, db querier) ([]contentieux.Affaire, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT numero, date_creation, montant_total, statut, code_contrevenant,
		       code_bureau, code_service, created_at
		FROM affaires ORDER BY date_creation DESC, numero`)
	if err != nil {
		return nil, fmt.Errorf("failed to query affaires: %w", err)
	}
	defer rows.Close()

	var affaires []contentieux.Affaire
	for rows.Next() {
		a, err := scanAffaire(rows)
		if err != nil {
			return nil, err
		}
		affaires = append(affaires, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range affaires {
		if affaires[i].Contraventions, err = s.loadContraventions(ctx, db, affaires[i].Numero); err != nil {
			return nil, err
		}
		if affaires[i].Acteurs, err = s.loadActeurs(ctx, db, affaires[i].Numero); err != nil {
			return nil, err
		}
	}
	return affaires, nil
}

func (s *Store) UpdateAffaireStatut(ctx context.Context, numero string, statut contentieux.StatutAffaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAffaireStatut(ctx, s.db, numero, statut)
}

func (s *Store) updateAffaireStatut(ctx context.Context, db querier, numero string, statut contentieux.StatutAffaire) error {
	res, err := db.ExecContext(ctx,
		`UPDATE affaires SET statut = ? WHERE numero = ?`, string(statut), numero)
	if err != nil {
		return fmt.Errorf("failed to update affaire statut: %w", err)
	}
	return requireRow(res, contentieux.ErrAffaireInconnue)
}

func (s *Store) loadContraventions(ctx context.Context, db querier, numero string) ([]contentieux.LigneContravention, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT code_contravention, libelle, montant
		FROM contraventions WHERE numero_affaire = ? ORDER BY id`, numero)
	if err != nil {
		return nil, fmt.Errorf("failed to query contraventions: %w", err)
	}
	defer rows.Close()

	var lignes []contentieux.LigneContravention
	for rows.Next() {
		var (
			l       contentieux.LigneContravention
			code    sql.NullString
			montant string
		)
		if err := rows.Scan(&code, &l.Libelle, &montant); err != nil {
			return nil, err
		}
		l.CodeContravention = code.String
		l.Montant = mustDecimal(montant)
		lignes = append(lignes, l)
	}
	return lignes, rows.Err()
}

func (s *Store) loadActeurs(ctx context.Context, db querier, numero string) ([]contentieux.Acteur, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT code_agent, role FROM acteurs WHERE numero_affaire = ? ORDER BY id`, numero)
	if err != nil {
		return nil, fmt.Errorf("failed to query acteurs: %w", err)
	}
	defer rows.Close()

	var acteurs []contentieux.Acteur
	for rows.Next() {
		var (
			a    contentieux.Acteur
			role string
		)
		if err := rows.Scan(&a.CodeAgent, &role); err != nil {
			return nil, err
		}
		a.Role = contentieux.RoleActeur(role)
		acteurs = append(acteurs, a)
	}
	return acteurs, rows.Err()
}

// =============================================================================
// ENCAISSEMENTS (contentieux.Store interface)
// =============================================================================

func (s *Store) SaveEncaissement(ctx context.Context, e contentieux.Encaissement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEncaissement(ctx, s.db, e)
}

func (s *Store) saveEncaissement(ctx context.Context, db querier, e contentieux.Encaissement) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO encaissements
		(reference, numero_affaire, date_encaissement, montant, mode, code_banque, numero_cheque, statut, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Reference,
		e.NumeroAffaire,
		e.DateEncaissement.String(),
		e.Montant.String(),
		string(e.Mode),
		e.CodeBanque,
		e.NumeroCheque,
		string(e.Statut),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert encaissement %s: %w", e.Reference, err)
	}
	return nil
}

func (s *Store) GetEncaissement(ctx context.Context, reference string) (contentieux.Encaissement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEncaissement(ctx, s.db, reference)
}

func (s *Store) getEncaissement(ctx context.Context, db querier, reference string) (contentieux.Encaissement, error) {
	row := db.QueryRowContext(ctx, `
		SELECT reference, numero_affaire, date_encaissement, montant, mode,
		       code_banque, numero_cheque, statut, created_at
		FROM encaissements WHERE reference = ?`, reference)

	e, err := scanEncaissement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contentieux.Encaissement{}, contentieux.ErrEncaissementInconnu
	}
	return e, err
}

func (s *Store) ListEncaissements(ctx context.Context, numeroAffaire string) ([]contentieux.Encaissement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEncaissements(ctx, s.db, numeroAffaire)
}

func (s *Store) listEncaissements(ctx context.Context, db querier, numeroAffaire string) ([]contentieux.Encaissement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT reference, numero_affaire, date_encaissement, montant, mode,
		       code_banque, numero_cheque, statut, created_at
		FROM encaissements
		WHERE numero_affaire = ?
		ORDER BY date_encaissement, created_at`, numeroAffaire)
	if err != nil {
		return nil, fmt.Errorf("failed to query encaissements: %w", err)
	}
	defer rows.Close()

	var encs []contentieux.Encaissement
	for rows.Next() {
		e, err := scanEncaissement(rows)
		if err != nil {
			return nil, err
		}
		encs = append(encs, e)
	}
	return encs, rows.Err()
}

func (s *Store) UpdateEncaissementStatut(ctx context.Context, reference string, statut contentieux.StatutEncaissement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateEncaissementStatut(ctx, s.db, reference, statut)
}

func (s *Store) updateEncaissementStatut(ctx context.Context, db querier, reference string, statut contentieux.StatutEncaissement) error {
	res, err := db.ExecContext(ctx,
		`UPDATE encaissements SET statut = ? WHERE reference = ?`, string(statut), reference)
	if err != nil {
		return fmt.Errorf("failed to update encaissement statut: %w", err)
	}
	return requireRow(res, contentieux.ErrEncaissementInconnu)
}

// =============================================================================
// CONTREVENANTS (contentieux.Store interface)
// =============================================================================

func (s *Store) SaveContrevenant(ctx context.Context, c contentieux.Contrevenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveContrevenant(ctx, s.db, c)
}

func (s *Store) saveContrevenant(ctx context.Context, db querier, c contentieux.Contrevenant) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO contrevenants (code, nom, type, telephone, adresse, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			nom = excluded.nom,
			type = excluded.type,
			telephone = excluded.telephone,
			adresse = excluded.adresse`,
		c.Code, c.Nom, string(c.Type), c.Telephone, c.Adresse, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save contrevenant %s: %w", c.Code, err)
	}
	return nil
}

func (s *Store) GetContrevenant(ctx context.Context, code string) (contentieux.Contrevenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContrevenant(ctx, s.db, code)
}

func (s *Store) getContrevenant(ctx context.Context, db querier, code string) (contentieux.Contrevenant, error) {
	var (
		c         contentieux.Contrevenant
		ctype     string
		tel, addr sql.NullString
		createdAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT code, nom, type, telephone, adresse, created_at
		FROM contrevenants WHERE code = ?`, code,
	).Scan(&c.Code, &c.Nom, &ctype, &tel, &addr, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contentieux.Contrevenant{}, contentieux.ErrContrevenantInconnu
	}
	if err != nil {
		return contentieux.Contrevenant{}, err
	}
	c.Type = contentieux.TypeContrevenant(ctype)
	c.Telephone = tel.String
	c.Adresse = addr.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// =============================================================================
// MANDATS (mandat.Store interface)
// =============================================================================

func (s *Store) SaveMandat(ctx context.Context, m mandat.Mandat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mandats (numero, libelle, date_debut, date_fin, statut, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Numero, m.Libelle, m.DateDebut.String(), m.DateFin.String(),
		string(m.Statut), formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert mandat %s: %w", m.Numero, err)
	}
	return nil
}

func (s *Store) GetMandat(ctx context.Context, numero string) (mandat.Mandat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMandat(ctx, s.db, numero)
}

func (s *Store) getMandat(ctx context.Context, db querier, numero string) (mandat.Mandat, error) {
	row := db.QueryRowContext(ctx, `
		SELECT numero, libelle, date_debut, date_fin, statut, created_at
		FROM mandats WHERE numero = ?`, numero)

	m, err := scanMandat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mandat.Mandat{}, mandat.ErrMandatInconnu
	}
	return m, err
}

func (s *Store) ListMandats(ctx context.Context) ([]mandat.Mandat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT numero, libelle, date_debut, date_fin, statut, created_at
		FROM mandats ORDER BY date_debut DESC, numero`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mandats: %w", err)
	}
	defer rows.Close()

	var mandats []mandat.Mandat
	for rows.Next() {
		m, err := scanMandat(rows)
		if err != nil {
			return nil, err
		}
		mandats = append(mandats, m)
	}
	return mandats, rows.Err()
}

func (s *Store) ActiveMandat(ctx context.Context) (mandat.Mandat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT numero, libelle, date_debut, date_fin, statut, created_at
		FROM mandats WHERE statut = 'ACTIF'`)

	m, err := scanMandat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mandat.Mandat{}, mandat.ErrAucunMandatActif
	}
	return m, err
}

// ActivateMandat deactivates the current ACTIF mandate and activates the
// target in one transaction. The partial unique index guarantees the
// invariant even if two activations race.
func (s *Store) ActivateMandat(ctx context.Context, numero string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	target, err := s.getMandat(ctx, sqlTx, numero)
	if err != nil {
		return err
	}
	if target.Statut == mandat.StatutCloture {
		return &contentieux.EtatError{
			Sujet:  numero,
			Depuis: string(mandat.StatutCloture),
			Vers:   string(mandat.StatutActif),
		}
	}

	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE mandats SET statut = 'BROUILLON' WHERE statut = 'ACTIF' AND numero != ?`, numero,
	); err != nil {
		return fmt.Errorf("failed to deactivate current mandat: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE mandats SET statut = 'ACTIF' WHERE numero = ?`, numero,
	); err != nil {
		return fmt.Errorf("failed to activate mandat %s: %w", numero, err)
	}

	return sqlTx.Commit()
}

func (s *Store) CloseMandat(ctx context.Context, numero string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE mandats SET statut = 'CLOTURE' WHERE numero = ? AND statut = 'ACTIF'`, numero)
	if err != nil {
		return fmt.Errorf("failed to close mandat %s: %w", numero, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish missing from wrong-state.
		m, err := s.getMandat(ctx, s.db, numero)
		if err != nil {
			return err
		}
		return &contentieux.EtatError{
			Sujet:  numero,
			Depuis: string(m.Statut),
			Vers:   string(mandat.StatutCloture),
		}
	}
	return nil
}

// StatistiquesMandat aggregates over the mandate window: affaires opened
// in it, settled ones among them, and VALIDE payments dated within it.
// Amounts are summed in Go because they are stored as decimal strings.
func (s *Store) StatistiquesMandat(ctx context.Context, m mandat.Mandat) (mandat.Statistiques, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := mandat.Statistiques{
		NumeroMandat:  m.Numero,
		TotalEncaisse: decimal.Zero,
		RefreshedAt:   time.Now().UTC(),
	}
	debut, fin := m.DateDebut.String(), m.DateFin.String()

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN statut = 'SOLDEE' THEN 1 ELSE 0 END), 0)
		FROM affaires
		WHERE date_creation >= ? AND date_creation <= ?`,
		debut, fin,
	).Scan(&stats.NbAffaires, &stats.NbSoldees)
	if err != nil {
		return mandat.Statistiques{}, fmt.Errorf("failed to aggregate affaires: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT montant FROM encaissements
		WHERE statut = 'VALIDE' AND date_encaissement >= ? AND date_encaissement <= ?`,
		debut, fin)
	if err != nil {
		return mandat.Statistiques{}, fmt.Errorf("failed to query encaissements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var montant string
		if err := rows.Scan(&montant); err != nil {
			return mandat.Statistiques{}, err
		}
		stats.TotalEncaisse = stats.TotalEncaisse.Add(mustDecimal(montant))
	}
	return stats, rows.Err()
}

// =============================================================================
// REFERENTIELS (referentiel.Store interface)
// =============================================================================

func (s *Store) SaveEntry(ctx context.Context, e referentiel.Entry) error {
	if !e.Kind.Valid() {
		return referentiel.ErrKindInconnu
	}
	if err := e.Fiche.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referentiels (kind, code, libelle, description, actif, montant_base)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, code) DO UPDATE SET
			libelle = excluded.libelle,
			description = excluded.description,
			actif = excluded.actif,
			montant_base = excluded.montant_base`,
		string(e.Kind), e.Fiche.Code, e.Fiche.Libelle, e.Fiche.Description,
		e.Fiche.Actif, e.MontantBase.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save referentiel %s/%s: %w", e.Kind, e.Fiche.Code, err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, kind referentiel.Kind, code string) (referentiel.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT kind, code, libelle, description, actif, montant_base
		FROM referentiels WHERE kind = ? AND code = ?`, string(kind), code)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return referentiel.Entry{}, referentiel.ErrFicheInconnue
	}
	return e, err
}

func (s *Store) ListEntries(ctx context.Context, kind referentiel.Kind) ([]referentiel.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, code, libelle, description, actif, montant_base
		FROM referentiels WHERE kind = ? ORDER BY code`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query referentiels: %w", err)
	}
	defer rows.Close()

	var entries []referentiel.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAffaire(row rowScanner) (contentieux.Affaire, error) {
	var (
		a                     contentieux.Affaire
		dateCreation, montant string
		statut, createdAt     string
		bureau, service       sql.NullString
	)
	err := row.Scan(&a.Numero, &dateCreation, &montant, &statut,
		&a.CodeContrevenant, &bureau, &service, &createdAt)
	if err != nil {
		return a, err
	}
	a.DateCreation, _ = contentieux.ParseDate(dateCreation)
	a.MontantTotal = mustDecimal(montant)
	a.Statut = contentieux.StatutAffaire(statut)
	a.CodeBureau = bureau.String
	a.CodeService = service.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

func scanEncaissement(row rowScanner) (contentieux.Encaissement, error) {
	var (
		e              contentieux.Encaissement
		date, montant  string
		mode, statut   string
		banque, cheque sql.NullString
		createdAt      string
	)
	err := row.Scan(&e.Reference, &e.NumeroAffaire, &date, &montant, &mode,
		&banque, &cheque, &statut, &createdAt)
	if err != nil {
		return e, err
	}
	e.DateEncaissement, _ = contentieux.ParseDate(date)
	e.Montant = mustDecimal(montant)
	e.Mode = contentieux.ModeReglement(mode)
	e.CodeBanque = banque.String
	e.NumeroCheque = cheque.String
	e.Statut = contentieux.StatutEncaissement(statut)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func scanMandat(row rowScanner) (mandat.Mandat, error) {
	var (
		m                 mandat.Mandat
		libelle           sql.NullString
		debut, fin        string
		statut, createdAt string
	)
	err := row.Scan(&m.Numero, &libelle, &debut, &fin, &statut, &createdAt)
	if err != nil {
		return m, err
	}
	m.Libelle = libelle.String
	m.DateDebut, _ = contentieux.ParseDate(debut)
	m.DateFin, _ = contentieux.ParseDate(fin)
	m.Statut = mandat.Statut(statut)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func scanEntry(row rowScanner) (referentiel.Entry, error) {
	var (
		e           referentiel.Entry
		kind        string
		description sql.NullString
		montantBase sql.NullString
	)
	err := row.Scan(&kind, &e.Fiche.Code, &e.Fiche.Libelle, &description,
		&e.Fiche.Actif, &montantBase)
	if err != nil {
		return e, err
	}
	e.Kind = referentiel.Kind(kind)
	e.Fiche.Description = description.String
	if montantBase.Valid {
		e.MontantBase = mustDecimal(montantBase.String)
	}
	return e, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
