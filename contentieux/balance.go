/*
balance.go - Case balance reconciliation

PURPOSE:
  Pure computation of payment state for a case. Answers "how much has
  been paid, how much remains, is it settled?" and validates payments
  before anything is persisted.

KEY RULES:
  - solde restant = max(montant total - encaisse, 0)
  - an affaire is SOLDEE when the solde reaches zero (and total > 0)
  - a payment may never overdraw the remaining balance
  - an affaire cannot be created without a qualifying first payment
    ("pas d'affaire sans encaissement")

NUMERIC SEMANTICS:
  All amounts are decimal.Decimal in a single implicit unit (FCFA).
  The progress ratio is displayed half-up at 2 decimal places.

Everything in this file is pure: same inputs, same outputs, no I/O.

SEE ALSO:
  - lifecycle.go: derives the case status from the Balance
  - service.go: runs these checks against stored payments
*/
package contentieux

import "github.com/shopspring/decimal"

// =============================================================================
// BALANCE - Computed payment state of a case
// =============================================================================

// Balance is the value object the presentation layer renders.
type Balance struct {
	MontantTotal decimal.Decimal
	Encaisse     decimal.Decimal
	Solde        decimal.Decimal

	// Encaisse / MontantTotal, zero when MontantTotal is zero.
	Progression decimal.Decimal

	Soldee bool
}

// ProgressionAffichee is the ratio rounded half-up at 2 decimal places,
// as shown in the UI ("0.67" for two thirds paid).
func (b Balance) ProgressionAffichee() decimal.Decimal {
	return b.Progression.Round(2)
}

// ComputeBalance computes the payment state of a case from its total fine
// amount and the amounts of the payments that count toward the balance.
func ComputeBalance(montantTotal decimal.Decimal, paiements []decimal.Decimal) Balance {
	encaisse := decimal.Zero
	for _, p := range paiements {
		encaisse = encaisse.Add(p)
	}

	solde := montantTotal.Sub(encaisse)
	if solde.IsNegative() {
		solde = decimal.Zero
	}

	progression := decimal.Zero
	if montantTotal.IsPositive() {
		progression = encaisse.Div(montantTotal)
	}

	return Balance{
		MontantTotal: montantTotal,
		Encaisse:     encaisse,
		Solde:        solde,
		Progression:  progression,
		Soldee:       solde.IsZero() && montantTotal.IsPositive(),
	}
}

// =============================================================================
// PAYMENT VALIDATION
// =============================================================================

// ValidateNewPayment checks that a payment of montant against a case with
// the given total and already-collected amount is acceptable.
func ValidateNewPayment(montantTotal, dejaEncaisse, montant decimal.Decimal) error {
	if !montant.IsPositive() {
		return ErrMontantNonPositif
	}
	if dejaEncaisse.Add(montant).GreaterThan(montantTotal) {
		return &DepassementSoldeError{
			Disponible: montantTotal.Sub(dejaEncaisse),
			Demande:    montant,
		}
	}
	return nil
}

// ValidateCaseCreation enforces the creation-boundary rule: a case only
// exists with a qualifying first payment, and the first payment cannot
// exceed the total fine amount. Every creation entry point goes through
// this single check.
func ValidateCaseCreation(montantTotal, premierEncaissement decimal.Decimal) error {
	if !premierEncaissement.IsPositive() {
		return ErrPremierEncaissementManquant
	}
	if premierEncaissement.GreaterThan(montantTotal) {
		return ErrMontantSuperieurTotal
	}
	return nil
}
