/*
service.go - Affaire / encaissement orchestration over the Store boundary

PURPOSE:
  The single entry point for creating cases and recording payments.
  Every UI or API path goes through this service, so the
  "pas d'affaire sans encaissement" rule is enforced exactly once.

FLOW (both operations):
  1. Load current state
  2. Run ALL validations, collecting Violations
  3. If any check failed: return the full list, persist nothing
  4. Compute the mandate-period warning (advisory, never blocking)
  5. Persist the whole group in one store transaction
  6. Return the updated case, balance and optional warning

PENDING HOLDS:
  An EN_ATTENTE payment reserves its amount against the balance (so a
  second payment cannot overdraw the case) but does not settle it.
  Only VALIDE payments move a case to SOLDEE.

SEE ALSO:
  - balance.go: the validation rules
  - store.go: the transactional boundary
  - mandat: the PeriodChecker implementation
*/
package contentieux

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// PeriodChecker answers whether a payment date falls within the active
// fiscal mandate. Implemented by mandat.Registry.
type PeriodChecker interface {
	// CheckPaymentPeriod returns a non-nil Warning when the date falls
	// outside the active mandate window (or no mandate is active).
	CheckPaymentPeriod(ctx context.Context, date Date) (*Warning, error)
}

// AffaireService orchestrates case creation and payment recording.
// Dependencies are injected explicitly; there are no global singletons.
type AffaireService struct {
	Store    TxStore
	Periodes PeriodChecker

	// Now is the clock used for "date <= today" checks. Defaults to Today.
	Now func() Date
}

func NewAffaireService(store TxStore, periodes PeriodChecker) *AffaireService {
	return &AffaireService{Store: store, Periodes: periodes, Now: Today}
}

func (s *AffaireService) today() Date {
	if s.Now != nil {
		return s.Now()
	}
	return Today()
}

// =============================================================================
// INPUTS
// =============================================================================

// NouvelleAffaire is the input for case creation. The first payment is
// mandatory: a case cannot exist without it.
type NouvelleAffaire struct {
	DateCreation Date // defaults to today

	// Total fine amount; defaults to the sum of the contravention lines.
	MontantTotal decimal.Decimal

	CodeContrevenant string
	CodeBureau       string
	CodeService      string

	Contraventions []LigneContravention
	Acteurs        []Acteur

	PremierEncaissement NouvelEncaissement
}

// NouvelEncaissement is the input for recording a payment.
type NouvelEncaissement struct {
	Date    Date // defaults to today
	Montant decimal.Decimal
	Mode    ModeReglement // defaults to ESPECES

	CodeBanque   string
	NumeroCheque string

	// EN_ATTENTE or VALIDE; defaults to VALIDE (paid at the counter).
	// Cheques awaiting clearance are recorded EN_ATTENTE and validated
	// or rejected later.
	Statut StatutEncaissement
}

func (n *NouvelEncaissement) normalize(today Date) {
	if n.Date.IsZero() {
		n.Date = today
	}
	if n.Mode == "" {
		n.Mode = ModeEspeces
	}
	if n.Statut == "" {
		n.Statut = EncaissementValide
	}
}

// validateFields runs the field-level payment checks shared by creation
// and recording, appending to the violation list.
func (n NouvelEncaissement) validateFields(today Date, v *Violations) {
	if n.Date.After(today) {
		v.Add(ErrDateFuture, fmt.Sprintf("la date d'encaissement %s est dans le futur", n.Date))
	}
	if n.Mode.RequiertBanque() && (n.CodeBanque == "" || n.NumeroCheque == "") {
		v.Add(ErrReferenceBancaireManquante, "un reglement par cheque exige la banque et le numero de cheque")
	}
	if n.Statut != EncaissementValide && n.Statut != EncaissementEnAttente {
		v.Add(ErrEtatInvalide, fmt.Sprintf("statut initial %q invalide pour un encaissement", n.Statut))
	}
}

// =============================================================================
// RESULTS
// =============================================================================

// CreationResult is returned by CreateAffaire.
type CreationResult struct {
	Affaire      Affaire
	Encaissement Encaissement
	Balance      Balance
	Warning      *Warning
}

// PaiementResult is returned by RecordEncaissement and ValiderEncaissement.
type PaiementResult struct {
	Affaire      Affaire
	Encaissement Encaissement
	Balance      Balance
	Warning      *Warning
}

// =============================================================================
// CASE CREATION
// =============================================================================

// CreateAffaire validates and persists a new case together with its first
// payment, atomically. On validation failure nothing is persisted and the
// error carries every failed check.
func (s *AffaireService) CreateAffaire(ctx context.Context, input NouvelleAffaire) (*CreationResult, error) {
	today := s.today()
	if input.DateCreation.IsZero() {
		input.DateCreation = today
	}

	total := input.MontantTotal
	if total.IsZero() {
		for _, l := range input.Contraventions {
			total = total.Add(l.Montant)
		}
	}

	premier := input.PremierEncaissement
	premier.normalize(input.DateCreation)

	var v Violations
	if total.IsNegative() {
		v.Add(ErrMontantNonPositif, "le montant total de l'amende ne peut pas etre negatif")
	}
	if len(input.Contraventions) == 0 {
		v.Add(ErrChampRequis, "au moins une contravention est requise")
	}
	if input.CodeContrevenant == "" {
		v.Add(ErrChampRequis, "le contrevenant est requis")
	}
	if err := ValidateCaseCreation(total, premier.Montant); err != nil {
		switch {
		case errors.Is(err, ErrPremierEncaissementManquant):
			v.Add(err, "une affaire ne peut pas etre creee sans encaissement initial")
		case errors.Is(err, ErrMontantSuperieurTotal):
			v.Add(err, fmt.Sprintf("le premier encaissement (%s) depasse le montant total (%s)", premier.Montant, total))
		default:
			v.Add(err, err.Error())
		}
	}
	premier.validateFields(today, &v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	warning, err := s.checkPeriod(ctx, premier.Date)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	affaire := Affaire{
		Numero:           NouveauNumeroAffaire(input.DateCreation),
		DateCreation:     input.DateCreation,
		MontantTotal:     total,
		CodeContrevenant: input.CodeContrevenant,
		CodeBureau:       input.CodeBureau,
		CodeService:      input.CodeService,
		Contraventions:   input.Contraventions,
		Acteurs:          input.Acteurs,
		CreatedAt:        now,
	}
	encaissement := Encaissement{
		Reference:        NouvelleReferenceEncaissement(),
		NumeroAffaire:    affaire.Numero,
		DateEncaissement: premier.Date,
		Montant:          premier.Montant,
		Mode:             premier.Mode,
		CodeBanque:       premier.CodeBanque,
		NumeroCheque:     premier.NumeroCheque,
		Statut:           premier.Statut,
		CreatedAt:        now,
	}

	balance := SoldeAffaire(affaire, []Encaissement{encaissement})
	affaire.Statut = DeriveStatut("", balance)

	// Case and first payment live or die together.
	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveAffaire(ctx, affaire); err != nil {
			return err
		}
		return st.SaveEncaissement(ctx, encaissement)
	})
	if err != nil {
		return nil, err
	}

	return &CreationResult{Affaire: affaire, Encaissement: encaissement, Balance: balance, Warning: warning}, nil
}

// =============================================================================
// PAYMENT RECORDING
// =============================================================================

// RecordEncaissement validates and persists a payment against an existing
// case, recomputing the case status when the payment is VALIDE.
func (s *AffaireService) RecordEncaissement(ctx context.Context, numeroAffaire string, input NouvelEncaissement) (*PaiementResult, error) {
	today := s.today()
	input.normalize(today)

	affaire, err := s.Store.GetAffaire(ctx, numeroAffaire)
	if err != nil {
		return nil, err
	}
	existants, err := s.Store.ListEncaissements(ctx, numeroAffaire)
	if err != nil {
		return nil, err
	}

	// EN_ATTENTE payments hold the balance: overdraw is checked against
	// everything that is not REJETE.
	retenu := decimal.Zero
	for _, m := range MontantsRetenus(existants) {
		retenu = retenu.Add(m)
	}

	var v Violations
	if err := ValidateNewPayment(affaire.MontantTotal, retenu, input.Montant); err != nil {
		switch {
		case errors.Is(err, ErrMontantNonPositif):
			v.Add(err, "le montant de l'encaissement doit etre positif")
		case errors.Is(err, ErrDepassementSolde):
			v.Add(err, fmt.Sprintf("le montant %s depasse le solde restant (%s)", input.Montant, affaire.MontantTotal.Sub(retenu)))
		default:
			v.Add(err, err.Error())
		}
	}
	input.validateFields(today, &v)
	if err := v.Err(); err != nil {
		return nil, err
	}

	warning, err := s.checkPeriod(ctx, input.Date)
	if err != nil {
		return nil, err
	}

	encaissement := Encaissement{
		Reference:        NouvelleReferenceEncaissement(),
		NumeroAffaire:    affaire.Numero,
		DateEncaissement: input.Date,
		Montant:          input.Montant,
		Mode:             input.Mode,
		CodeBanque:       input.CodeBanque,
		NumeroCheque:     input.NumeroCheque,
		Statut:           input.Statut,
		CreatedAt:        time.Now().UTC(),
	}

	balance := SoldeAffaire(affaire, append(existants, encaissement))
	statut := DeriveStatut(affaire.Statut, balance)

	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveEncaissement(ctx, encaissement); err != nil {
			return err
		}
		if statut != affaire.Statut {
			return st.UpdateAffaireStatut(ctx, affaire.Numero, statut)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	affaire.Statut = statut

	return &PaiementResult{Affaire: affaire, Encaissement: encaissement, Balance: balance, Warning: warning}, nil
}

// =============================================================================
// PAYMENT VALIDATION ACTIONS
// =============================================================================

// ValiderEncaissement moves an EN_ATTENTE payment to VALIDE and recomputes
// the case status.
func (s *AffaireService) ValiderEncaissement(ctx context.Context, reference string) (*PaiementResult, error) {
	encaissement, err := s.Store.GetEncaissement(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := encaissement.Valider(); err != nil {
		return nil, err
	}

	affaire, err := s.Store.GetAffaire(ctx, encaissement.NumeroAffaire)
	if err != nil {
		return nil, err
	}
	existants, err := s.Store.ListEncaissements(ctx, affaire.Numero)
	if err != nil {
		return nil, err
	}

	// Recompute with the payment now VALIDE.
	for i := range existants {
		if existants[i].Reference == reference {
			existants[i].Statut = EncaissementValide
		}
	}
	balance := SoldeAffaire(affaire, existants)
	statut := DeriveStatut(affaire.Statut, balance)

	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.UpdateEncaissementStatut(ctx, reference, EncaissementValide); err != nil {
			return err
		}
		if statut != affaire.Statut {
			return st.UpdateAffaireStatut(ctx, affaire.Numero, statut)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	affaire.Statut = statut

	return &PaiementResult{Affaire: affaire, Encaissement: encaissement, Balance: balance}, nil
}

// RejeterEncaissement moves an EN_ATTENTE payment to REJETE. The balance is
// unchanged (the payment never counted toward settlement) and the hold it
// placed on the case is released.
func (s *AffaireService) RejeterEncaissement(ctx context.Context, reference string) (*PaiementResult, error) {
	encaissement, err := s.Store.GetEncaissement(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := encaissement.Rejeter(); err != nil {
		return nil, err
	}

	if err := s.Store.UpdateEncaissementStatut(ctx, reference, EncaissementRejete); err != nil {
		return nil, err
	}

	affaire, err := s.Store.GetAffaire(ctx, encaissement.NumeroAffaire)
	if err != nil {
		return nil, err
	}
	existants, err := s.Store.ListEncaissements(ctx, affaire.Numero)
	if err != nil {
		return nil, err
	}

	return &PaiementResult{Affaire: affaire, Encaissement: encaissement, Balance: SoldeAffaire(affaire, existants)}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// BalanceAffaire returns the current settlement balance of a case.
func (s *AffaireService) BalanceAffaire(ctx context.Context, numero string) (Balance, error) {
	affaire, err := s.Store.GetAffaire(ctx, numero)
	if err != nil {
		return Balance{}, err
	}
	encaissements, err := s.Store.ListEncaissements(ctx, numero)
	if err != nil {
		return Balance{}, err
	}
	return SoldeAffaire(affaire, encaissements), nil
}

func (s *AffaireService) checkPeriod(ctx context.Context, date Date) (*Warning, error) {
	if s.Periodes == nil {
		return nil, nil
	}
	return s.Periodes.CheckPaymentPeriod(ctx, date)
}
