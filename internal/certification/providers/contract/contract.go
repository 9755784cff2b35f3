// Package contract holds the behavioural checks every notarization provider must pass.
package contract

import (
	"context"
	"testing"
	"time"

	"citywalk/internal/certification/certificate"
	"citywalk/internal/certification/providers"
	dErrors "citywalk/pkg/domain-errors"
)

// Suite validates a provider against the notarize/verify contract.
type Suite struct {
	Provider providers.Provider
	// Prefix is the expected reference id namespace.
	Prefix      string
	Credentials providers.Credentials
	// Certificate returns a fresh, valid certificate for each test.
	Certificate func() *certificate.Certificate
}

// Run executes all contract checks as subtests.
func (s *Suite) Run(t *testing.T) {
	t.Run("round trip", s.roundTrip)
	t.Run("tamper detection", s.tamperDetection)
	t.Run("equivalent rewrite", s.equivalentRewrite)
	t.Run("deterministic reference", s.deterministicReference)
	t.Run("missing certificate", s.missingCertificate)
	t.Run("malformed certificate", s.malformedCertificate)
}

func (s *Suite) notarize(t *testing.T, cert *certificate.Certificate) *providers.NotarizationResult {
	t.Helper()
	result, err := s.Provider.Notarize(context.Background(), cert, s.Credentials)
	if err != nil {
		t.Fatalf("notarize failed: %v", err)
	}
	return result
}

func (s *Suite) roundTrip(t *testing.T) {
	cert := s.Certificate()
	result := s.notarize(t, cert)

	if result.ProviderName != s.Provider.Name() {
		t.Errorf("expected provider name %s, got %s", s.Provider.Name(), result.ProviderName)
	}
	digest, err := certificate.DigestCertificate(cert)
	if err != nil {
		t.Fatalf("digest failed: %v", err)
	}
	if result.ReferenceID != s.Prefix+digest {
		t.Errorf("expected reference %s, got %s", s.Prefix+digest, result.ReferenceID)
	}
	if result.Ordinal == "" {
		t.Error("ordinal not set")
	}
	if result.NotarizedAt.IsZero() {
		t.Error("notarizedAt not set")
	}

	verification, err := s.Provider.Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: result.ReferenceID,
		Ordinal:     result.Ordinal,
		NotarizedAt: result.NotarizedAt,
		Certificate: result.Certificate,
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verification.Valid {
		t.Error("expected notarized certificate to verify")
	}
	if verification.Ordinal != result.Ordinal || !verification.NotarizedAt.Equal(result.NotarizedAt) {
		t.Error("verification did not echo stored metadata")
	}
}

func (s *Suite) tamperDetection(t *testing.T) {
	cert := s.Certificate()
	result := s.notarize(t, cert)

	mutations := map[string]func(c *certificate.Certificate){
		"sealName":   func(c *certificate.Certificate) { c.SealName += "!" },
		"userId":     func(c *certificate.Certificate) { c.UserID = "someone-else" },
		"earnedTime": func(c *certificate.Certificate) { c.EarnedTime = "1999-01-01T00:00:00.000Z" },
		"timestamp":  func(c *certificate.Certificate) { c.Timestamp++ },
		"location":   func(c *certificate.Certificate) { c.Location = "Elsewhere" },
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			tampered := *cert
			mutate(&tampered)
			verification, err := s.Provider.Verify(context.Background(), providers.VerifyRequest{
				ReferenceID: result.ReferenceID,
				Ordinal:     result.Ordinal,
				NotarizedAt: result.NotarizedAt,
				Certificate: &tampered,
			})
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if verification.Valid {
				t.Errorf("expected tampered %s to fail verification", field)
			}
			if verification.ReferenceID != result.ReferenceID {
				t.Error("verification did not echo reference id")
			}
		})
	}
}

// equivalentRewrite stores a composed seal name, then swaps in its decomposed
// spelling. The bytes differ, so the certificate must not verify.
func (s *Suite) equivalentRewrite(t *testing.T) {
	cert := s.Certificate()
	cert.SealName = "Caf\u00e9"
	result := s.notarize(t, cert)

	tampered := *cert
	tampered.SealName = "Cafe\u0301"
	verification, err := s.Provider.Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: result.ReferenceID,
		Ordinal:     result.Ordinal,
		NotarizedAt: result.NotarizedAt,
		Certificate: &tampered,
	})
	if err == nil && verification.Valid {
		t.Fatal("expected decomposed seal name to fail verification")
	}
	if err != nil && !dErrors.HasCode(err, dErrors.CodeInvalidCertificate) {
		t.Errorf("expected invalid certificate error, got %v", err)
	}
	if err != nil && providers.GetCategory(err) != providers.ErrorInvalidCertificate {
		t.Errorf("expected category %s, got %s", providers.ErrorInvalidCertificate, providers.GetCategory(err))
	}
}

func (s *Suite) deterministicReference(t *testing.T) {
	cert := s.Certificate()
	first := s.notarize(t, cert)
	second := s.notarize(t, cert)
	if first.ReferenceID != second.ReferenceID {
		t.Errorf("reference changed between runs: %s vs %s", first.ReferenceID, second.ReferenceID)
	}
}

func (s *Suite) missingCertificate(t *testing.T) {
	notarizedAt := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)
	verification, err := s.Provider.Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: s.Prefix + "00",
		Ordinal:     "1",
		NotarizedAt: notarizedAt,
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verification.Valid {
		t.Error("expected verification without certificate to be invalid")
	}
	if verification.ReferenceID != s.Prefix+"00" || verification.Ordinal != "1" || !verification.NotarizedAt.Equal(notarizedAt) {
		t.Error("verification did not echo stored metadata")
	}
}

func (s *Suite) malformedCertificate(t *testing.T) {
	cert := s.Certificate()
	cert.Nonce = "not-hex"
	_, err := s.Provider.Verify(context.Background(), providers.VerifyRequest{
		ReferenceID: s.Prefix + "00",
		Certificate: cert,
	})
	if !dErrors.HasCode(err, dErrors.CodeInvalidCertificate) {
		t.Errorf("expected invalid certificate error, got %v", err)
	}
}
