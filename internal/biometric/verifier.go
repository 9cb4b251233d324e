// Package biometric verifies submitted biometric samples against enrolled
// template hashes and throttles repeated verification attempts.
package biometric

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// Verifier compares a submitted sample against a staff member's enrolled
// template for the given modality. It fails closed: a missing template, an
// unsupported modality, or an internal comparison error all report "not
// verified" and never panic past the boundary.
type Verifier struct{}

// NewVerifier constructs a verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether the sample matches the enrolled template. MANUAL
// samples are PINs compared against the separately stored PIN hash; the
// remaining modalities compare against the salted one-way template hash.
func (v *Verifier) Verify(staff *domain.StaffMember, modality domain.BiometricModality, sample string) bool {
	if staff == nil || sample == "" {
		return false
	}
	switch modality {
	case domain.ModalityFingerprint, domain.ModalityFacial, domain.ModalityIris, domain.ModalityManual:
	default:
		return false
	}

	enrolled := staff.TemplateFor(modality)
	if enrolled == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(enrolled), []byte(sample)) == nil
}

// HashTemplate produces the salted one-way hash stored for an enrolled
// template or manual PIN.
func HashTemplate(raw string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
