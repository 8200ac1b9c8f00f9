package models

import (
	dErrors "securevault/pkg/domain-errors"
)

// Checklist item keys. The set is fixed; approval requires every item to be
// explicitly affirmed.
const (
	CheckCertificateLegitimate = "death_certificate_legitimate"
	CheckIdentityMatches       = "identity_matches_certificate"
	CheckNomineeVerified       = "nominee_identity_verified"
	CheckDeclarationSigned     = "legal_declaration_signed"
	CheckNoTampering           = "no_signs_of_tampering"
	CheckDeathDateReasonable   = "death_date_reasonable"
	CheckNoDuplicateClaims     = "no_duplicate_claims"
)

// ChecklistItems lists every key, in presentation order.
var ChecklistItems = []string{
	CheckCertificateLegitimate,
	CheckIdentityMatches,
	CheckNomineeVerified,
	CheckDeclarationSigned,
	CheckNoTampering,
	CheckDeathDateReasonable,
	CheckNoDuplicateClaims,
}

// Checklist records an admin's per-item assessment.
type Checklist map[string]bool

// Validate rejects unknown keys so a client cannot smuggle in items the
// review never defined.
func (c Checklist) Validate() error {
	known := make(map[string]struct{}, len(ChecklistItems))
	for _, k := range ChecklistItems {
		known[k] = struct{}{}
	}
	for k := range c {
		if _, ok := known[k]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "unknown checklist item %q", k)
		}
	}
	return nil
}

// Complete reports whether every item is present and affirmed.
func (c Checklist) Complete() bool {
	for _, k := range ChecklistItems {
		if !c[k] {
			return false
		}
	}
	return true
}

// Unchecked returns the items blocking approval, in presentation order.
func (c Checklist) Unchecked() []string {
	var out []string
	for _, k := range ChecklistItems {
		if !c[k] {
			out = append(out, k)
		}
	}
	return out
}
