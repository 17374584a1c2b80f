/*
errors.go - Centralized error types for the contentieux engine

PURPOSE:
  All validation and state errors in one place. Every error here is
  recoverable by the caller: the input is corrected and resubmitted.
  None is fatal to the process and none should be retried as-is.

ERROR CATEGORIES:
  1. Payment validation errors - amount/balance rules
  2. Case creation errors - the "pas d'affaire sans encaissement" rule
  3. State errors - illegal mandate or encaissement transitions
  4. Not-found errors - store lookups

WARNINGS:
  The mandate-period check produces a Warning, never an error. A payment
  outside the active mandate window saves normally; the caller only
  relays the "affaire à cheval" notice.

SEE ALSO:
  - balance.go: Returns the validation errors
  - service.go: Collects Violations before any persistence
*/
package contentieux

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMontantNonPositif is returned when a payment amount is <= 0.
	ErrMontantNonPositif = errors.New("montant non positif")

	// ErrDepassementSolde is returned when a payment would overdraw the
	// remaining balance of its case.
	ErrDepassementSolde = errors.New("montant superieur au solde restant")

	// ErrPremierEncaissementManquant is returned when case creation is
	// attempted without a qualifying first payment.
	ErrPremierEncaissementManquant = errors.New("aucun encaissement initial")

	// ErrMontantSuperieurTotal is returned when the first payment exceeds
	// the case's total fine amount.
	ErrMontantSuperieurTotal = errors.New("premier encaissement superieur au montant total")

	// ErrDateFuture is returned when a payment is dated after today.
	ErrDateFuture = errors.New("date d'encaissement dans le futur")

	// ErrReferenceBancaireManquante is returned when a cheque payment is
	// missing its bank code or cheque number.
	ErrReferenceBancaireManquante = errors.New("banque et numero de cheque requis")

	// ErrChampRequis is returned when a required field is missing.
	ErrChampRequis = errors.New("champ requis")

	// ErrEtatInvalide is returned on an illegal state transition
	// (mandate activate/close, encaissement valider/rejeter).
	ErrEtatInvalide = errors.New("transition d'etat invalide")

	// ErrEncaissementImmuable is returned when modifying a VALIDE payment.
	ErrEncaissementImmuable = errors.New("encaissement valide immuable")

	// Not-found errors from the Store implementations.
	ErrAffaireInconnue      = errors.New("affaire inconnue")
	ErrEncaissementInconnu  = errors.New("encaissement inconnu")
	ErrContrevenantInconnu  = errors.New("contrevenant inconnu")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DepassementSoldeError details a balance overdraw.
type DepassementSoldeError struct {
	NumeroAffaire string
	Disponible    decimal.Decimal
	Demande       decimal.Decimal
}

func (e *DepassementSoldeError) Error() string {
	return fmt.Sprintf("solde insuffisant sur %s: disponible %s, demande %s",
		e.NumeroAffaire, e.Disponible, e.Demande)
}

func (e *DepassementSoldeError) Unwrap() error { return ErrDepassementSolde }

// EtatError details an illegal transition.
type EtatError struct {
	Sujet   string // what was being transitioned (numero / reference)
	Depuis  string
	Vers    string
}

func (e *EtatError) Error() string {
	return fmt.Sprintf("%s: transition %s -> %s interdite", e.Sujet, e.Depuis, e.Vers)
}

func (e *EtatError) Unwrap() error { return ErrEtatInvalide }

// =============================================================================
// VIOLATIONS - Collected validation failures
// =============================================================================

// Violation is a single failed check with its human-readable message.
type Violation struct {
	Err     error
	Message string
}

// Violations collects every failed check for an operation. The service
// layer runs all checks to completion, surfaces the full list, and only
// persists when the list is empty. This mirrors the required behavior of
// collecting messages and aborting before any write.
type Violations struct {
	items []Violation
}

// Add records a failed check.
func (v *Violations) Add(err error, message string) {
	v.items = append(v.items, Violation{Err: err, Message: message})
}

// OK reports whether no check failed.
func (v *Violations) OK() bool { return len(v.items) == 0 }

// Messages returns the human-readable messages, in check order.
func (v *Violations) Messages() []string {
	msgs := make([]string, len(v.items))
	for i, item := range v.items {
		msgs[i] = item.Message
	}
	return msgs
}

// Err returns nil when all checks passed, otherwise a *ValidationError.
func (v *Violations) Err() error {
	if v.OK() {
		return nil
	}
	return &ValidationError{Violations: v.items}
}

// ValidationError carries the full list of failed checks.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return "validation: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, sentinel) match any collected violation.
func (e *ValidationError) Is(target error) bool {
	for _, v := range e.Violations {
		if errors.Is(v.Err, target) {
			return true
		}
	}
	return false
}

// =============================================================================
// WARNING - Advisory, never blocking
// =============================================================================

// Warning is a non-blocking notice returned alongside a successful result.
type Warning struct {
	Code    string
	Message string
}

// WarningCheval is the code for a payment dated outside the active
// mandate window ("affaire à cheval" on a mandate boundary).
const WarningCheval = "affaire_a_cheval"

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrMontantNonPositif) ||
		errors.Is(err, ErrDepassementSolde) ||
		errors.Is(err, ErrPremierEncaissementManquant) ||
		errors.Is(err, ErrMontantSuperieurTotal) ||
		errors.Is(err, ErrDateFuture) ||
		errors.Is(err, ErrReferenceBancaireManquante) ||
		errors.Is(err, ErrChampRequis)
}

// IsStateError returns true for illegal transitions (HTTP 409 territory).
func IsStateError(err error) bool {
	return errors.Is(err, ErrEtatInvalide) || errors.Is(err, ErrEncaissementImmuable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAffaireInconnue) ||
		errors.Is(err, ErrEncaissementInconnu) ||
		errors.Is(err, ErrContrevenantInconnu)
}
