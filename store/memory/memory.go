/*
Package memory provides an in-memory implementation of the storage
interfaces, for tests and local development.

Implements:
  contentieux.TxStore
  mandat.Store
  referentiel.Store

WithTx snapshots the maps before running fn and restores them on error,
so the rollback semantics match the SQLite store.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sodeca/contentieux-engine/contentieux"
	"github.com/sodeca/contentieux-engine/mandat"
	"github.com/sodeca/contentieux-engine/referentiel"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	affaires      map[string]contentieux.Affaire
	encaissements map[string]contentieux.Encaissement
	contrevenants map[string]contentieux.Contrevenant
	mandats       map[string]mandat.Mandat
	referentiels  map[refKey]referentiel.Entry
}

type refKey struct {
	Kind referentiel.Kind
	Code string
}

func New() *Memory {
	return &Memory{
		affaires:      make(map[string]contentieux.Affaire),
		encaissements: make(map[string]contentieux.Encaissement),
		contrevenants: make(map[string]contentieux.Contrevenant),
		mandats:       make(map[string]mandat.Mandat),
		referentiels:  make(map[refKey]referentiel.Entry),
	}
}

// =============================================================================
// CONTENTIEUX STORE (contentieux.Store interface)
// =============================================================================

func (m *Memory) SaveAffaire(_ context.Context, a contentieux.Affaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAffaireLocked(a)
}

func (m *Memory) saveAffaireLocked(a contentieux.Affaire) error {
	m.affaires[a.Numero] = a
	return nil
}

func (m *Memory) GetAffaire(_ context.Context, numero string) (contentieux.Affaire, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.affaires[numero]
	if !ok {
		return contentieux.Affaire{}, contentieux.ErrAffaireInconnue
	}
	return a, nil
}

func (m *Memory) ListAffaires(_ context.Context) ([]contentieux.Affaire, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	affaires := make([]contentieux.Affaire, 0, len(m.affaires))
	for _, a := range m.affaires {
		affaires = append(affaires, a)
	}
	sort.Slice(affaires, func(i, j int) bool {
		if !affaires[i].DateCreation.Equal(affaires[j].DateCreation) {
			return affaires[j].DateCreation.Before(affaires[i].DateCreation)
		}
		return affaires[i].Numero < affaires[j].Numero
	})
	return affaires, nil
}

func (m *Memory) UpdateAffaireStatut(_ context.Context, numero string, statut contentieux.StatutAffaire) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAffaireStatutLocked(numero, statut)
}

func (m *Memory) updateAffaireStatutLocked(numero string, statut contentieux.StatutAffaire) error {
	a, ok := m.affaires[numero]
	if !ok {
		return contentieux.ErrAffaireInconnue
	}
	a.Statut = statut
	m.affaires[numero] = a
	return nil
}

func (m *Memory) SaveEncaissement(_ context.Context, e contentieux.Encaissement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEncaissementLocked(e)
}

func (m *Memory) saveEncaissementLocked(e contentieux.Encaissement) error {
	m.encaissements[e.Reference] = e
	return nil
}

func (m *Memory) GetEncaissement(_ context.Context, reference string) (contentieux.Encaissement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.encaissements[reference]
	if !ok {
		return contentieux.Encaissement{}, contentieux.ErrEncaissementInconnu
	}
	return e, nil
}

func (m *Memory) ListEncaissements(_ context.Context, numeroAffaire string) ([]contentieux.Encaissement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var encs []contentieux.Encaissement
	for _, e := range m.encaissements {
		if e.NumeroAffaire == numeroAffaire {
			encs = append(encs, e)
		}
	}
	sort.Slice(encs, func(i, j int) bool {
		if !encs[i].DateEncaissement.Equal(encs[j].DateEncaissement) {
			return encs[i].DateEncaissement.Before(encs[j].DateEncaissement)
		}
		return encs[i].Reference < encs[j].Reference
	})
	return encs, nil
}

func (m *Memory) UpdateEncaissementStatut(_ context.Context, reference string, statut contentieux.StatutEncaissement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEncaissementStatutLocked(reference, statut)
}

func (m *Memory) updateEncaissementStatutLocked(reference string, statut contentieux.StatutEncaissement) error {
	e, ok := m.encaissements[reference]
	if !ok {
		return contentieux.ErrEncaissementInconnu
	}
	e.Statut = statut
	m.encaissements[reference] = e
	return nil
}

func (m *Memory) SaveContrevenant(_ context.Context, c contentieux.Contrevenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contrevenants[c.Code] = c
	return nil
}

func (m *Memory) GetContrevenant(_ context.Context, code string) (contentieux.Contrevenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contrevenants[code]
	if !ok {
		return contentieux.Contrevenant{}, contentieux.ErrContrevenantInconnu
	}
	return c, nil
}

// =============================================================================
// TRANSACTIONS (contentieux.TxStore interface)
// =============================================================================

// WithTx runs fn against an unlocked view while holding the write lock,
// restoring a snapshot of the maps if fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(contentieux.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	affaires := cloneMap(m.affaires)
	encaissements := cloneMap(m.encaissements)
	contrevenants := cloneMap(m.contrevenants)

	if err := fn(&txView{m: m}); err != nil {
		m.affaires = affaires
		m.encaissements = encaissements
		m.contrevenants = contrevenants
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txView exposes the locked internals to the WithTx callback.
type txView struct {
	m *Memory
}

func (t *txView) SaveAffaire(_ context.Context, a contentieux.Affaire) error {
	return t.m.saveAffaireLocked(a)
}

func (t *txView) GetAffaire(_ context.Context, numero string) (contentieux.Affaire, error) {
	a, ok := t.m.affaires[numero]
	if !ok {
		return contentieux.Affaire{}, contentieux.ErrAffaireInconnue
	}
	return a, nil
}

func (t *txView) ListAffaires(ctx context.Context) ([]contentieux.Affaire, error) {
	var affaires []contentieux.Affaire
	for _, a := range t.m.affaires {
		affaires = append(affaires, a)
	}
	return affaires, nil
}

func (t *txView) UpdateAffaireStatut(_ context.Context, numero string, statut contentieux.StatutAffaire) error {
	return t.m.updateAffaireStatutLocked(numero, statut)
}

func (t *txView) SaveEncaissement(_ context.Context, e contentieux.Encaissement) error {
	return t.m.saveEncaissementLocked(e)
}

func (t *txView) GetEncaissement(_ context.Context, reference string) (contentieux.Encaissement, error) {
	e, ok := t.m.encaissements[reference]
	if !ok {
		return contentieux.Encaissement{}, contentieux.ErrEncaissementInconnu
	}
	return e, nil
}

func (t *txView) ListEncaissements(_ context.Context, numeroAffaire string) ([]contentieux.Encaissement, error) {
	var encs []contentieux.Encaissement
	for _, e := range t.m.encaissements {
		if e.NumeroAffaire == numeroAffaire {
			encs = append(encs, e)
		}
	}
	return encs, nil
}

func (t *txView) UpdateEncaissementStatut(_ context.Context, reference string, statut contentieux.StatutEncaissement) error {
	return t.m.updateEncaissementStatutLocked(reference, statut)
}

func (t *txView) SaveContrevenant(_ context.Context, c contentieux.Contrevenant) error {
	t.m.contrevenants[c.Code] = c
	return nil
}

func (t *txView) GetContrevenant(_ context.Context, code string) (contentieux.Contrevenant, error) {
	c, ok := t.m.contrevenants[code]
	if !ok {
		return contentieux.Contrevenant{}, contentieux.ErrContrevenantInconnu
	}
	return c, nil
}

// =============================================================================
// MANDAT STORE (mandat.Store interface)
// =============================================================================

func (m *Memory) SaveMandat(_ context.Context, md mandat.Mandat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mandats[md.Numero] = md
	return nil
}

func (m *Memory) GetMandat(_ context.Context, numero string) (mandat.Mandat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.mandats[numero]
	if !ok {
		return mandat.Mandat{}, mandat.ErrMandatInconnu
	}
	return md, nil
}

func (m *Memory) ListMandats(_ context.Context) ([]mandat.Mandat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mandats := make([]mandat.Mandat, 0, len(m.mandats))
	for _, md := range m.mandats {
		mandats = append(mandats, md)
	}
	sort.Slice(mandats, func(i, j int) bool {
		if !mandats[i].DateDebut.Equal(mandats[j].DateDebut) {
			return mandats[j].DateDebut.Before(mandats[i].DateDebut)
		}
		return mandats[i].Numero < mandats[j].Numero
	})
	return mandats, nil
}

func (m *Memory) ActiveMandat(_ context.Context) (mandat.Mandat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, md := range m.mandats {
		if md.Statut == mandat.StatutActif {
			return md, nil
		}
	}
	return mandat.Mandat{}, mandat.ErrAucunMandatActif
}

// ActivateMandat swaps the ACTIF flag under a single lock, keeping the
// zero-or-one-ACTIF invariant.
func (m *Memory) ActivateMandat(_ context.Context, numero string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.mandats[numero]
	if !ok {
		return mandat.ErrMandatInconnu
	}
	if target.Statut == mandat.StatutCloture {
		return &contentieux.EtatError{Sujet: numero, Depuis: string(mandat.StatutCloture), Vers: string(mandat.StatutActif)}
	}

	for num, md := range m.mandats {
		if md.Statut == mandat.StatutActif && num != numero {
			md.Statut = mandat.StatutBrouillon
			m.mandats[num] = md
		}
	}
	target.Statut = mandat.StatutActif
	m.mandats[numero] = target
	return nil
}

func (m *Memory) CloseMandat(_ context.Context, numero string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	md, ok := m.mandats[numero]
	if !ok {
		return mandat.ErrMandatInconnu
	}
	if md.Statut != mandat.StatutActif {
		return &contentieux.EtatError{Sujet: numero, Depuis: string(md.Statut), Vers: string(mandat.StatutCloture)}
	}
	md.Statut = mandat.StatutCloture
	m.mandats[numero] = md
	return nil
}

// StatistiquesMandat aggregates over the affaires opened in the mandate
// window and the VALIDE payments dated within it.
func (m *Memory) StatistiquesMandat(_ context.Context, md mandat.Mandat) (mandat.Statistiques, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	periode := md.Periode()
	stats := mandat.Statistiques{
		NumeroMandat:  md.Numero,
		TotalEncaisse: decimal.Zero,
		RefreshedAt:   time.Now().UTC(),
	}

	for _, a := range m.affaires {
		if periode.Contains(a.DateCreation) {
			stats.NbAffaires++
			if a.Statut.Soldee() {
				stats.NbSoldees++
			}
		}
	}
	for _, e := range m.encaissements {
		if e.Statut == contentieux.EncaissementValide && periode.Contains(e.DateEncaissement) {
			stats.TotalEncaisse = stats.TotalEncaisse.Add(e.Montant)
		}
	}
	return stats, nil
}

// =============================================================================
// REFERENTIEL STORE (referentiel.Store interface)
// =============================================================================

func (m *Memory) SaveEntry(_ context.Context, e referentiel.Entry) error {
	if !e.Kind.Valid() {
		return referentiel.ErrKindInconnu
	}
	if err := e.Fiche.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referentiels[refKey{Kind: e.Kind, Code: e.Fiche.Code}] = e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, kind referentiel.Kind, code string) (referentiel.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.referentiels[refKey{Kind: kind, Code: code}]
	if !ok {
		return referentiel.Entry{}, referentiel.ErrFicheInconnue
	}
	return e, nil
}

func (m *Memory) ListEntries(_ context.Context, kind referentiel.Kind) ([]referentiel.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []referentiel.Entry
	for k, e := range m.referentiels {
		if k.Kind == kind {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Fiche.Code < entries[j].Fiche.Code })
	return entries, nil
}
