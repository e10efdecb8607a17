package certificates

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestIsExpiringSoon(t *testing.T) {
	now := testIssuanceTime
	testCases := []struct {
		name     string
		notAfter time.Time
		expected bool
	}{
		{name: "expired", notAfter: now.Add(-time.Hour), expected: true},
		{name: "within window", notAfter: now.Add(10 * 24 * time.Hour), expected: true},
		{name: "window boundary", notAfter: now.Add(DefaultExpiringSoonWindow), expected: true},
		{name: "outside window", notAfter: now.Add(DefaultExpiringSoonWindow + time.Hour), expected: false},
		{name: "years away", notAfter: now.Add(DefaultLeafCertificateValidityDuration), expected: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if actual := IsExpiringSoon(testCase.notAfter, now); actual != testCase.expected {
				t.Fatalf("expected %t, got %t", testCase.expected, actual)
			}
		})
	}
}

func TestFormatExpiration(t *testing.T) {
	formatted := FormatExpiration(time.Date(2028, time.May, 30, 8, 0, 0, 0, time.UTC))
	if formatted != "30 May 2028" {
		t.Fatalf("unexpected expiration %q", formatted)
	}
}

func TestInspectCertificate(t *testing.T) {
	issuer, manager, _ := newTestIssuer(t, NewOperatingSystemFileSystem())
	issued, err := issuer.IssueCertificate(context.Background(), CertificateRequest{
		Hosts: []string{"xn--mnchen-3ya.example", "10.0.0.1"},
	})
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}
	authority, loadErr := manager.LoadCertificateAuthority()
	if loadErr != nil {
		t.Fatalf("load certificate authority: %v", loadErr)
	}

	report, inspectErr := InspectCertificate(issued.CertificatePEM, authority.Certificate(), testIssuanceTime)
	if inspectErr != nil {
		t.Fatalf("inspect certificate: %v", inspectErr)
	}
	if !report.ChainValid || report.ChainError != "" {
		t.Fatalf("expected valid chain, got %q", report.ChainError)
	}
	if report.SelfSigned {
		t.Fatalf("leaf must not be reported as self-signed")
	}
	if report.ExpiringSoon {
		t.Fatalf("fresh leaf must not be expiring soon")
	}
	if !slices.Equal(report.SubjectAlternativeNames, []string{"DNS:münchen.example", "IP:10.0.0.1"}) {
		t.Fatalf("unexpected subject alternative names %v", report.SubjectAlternativeNames)
	}
	if report.Expires != FormatExpiration(issuer.CalculateExpiration(testIssuanceTime)) {
		t.Fatalf("unexpected expiration %q", report.Expires)
	}
	if report.SerialNumber != formatSerialNumber(issued.Certificate.SerialNumber) {
		t.Fatalf("unexpected serial number %s", report.SerialNumber)
	}

	rootReport, rootErr := InspectCertificate(authority.CertificatePEM(), authority.Certificate(), testIssuanceTime)
	if rootErr != nil {
		t.Fatalf("inspect root: %v", rootErr)
	}
	if !rootReport.SelfSigned {
		t.Fatalf("root must be reported as self-signed")
	}
}

func TestInspectCertificateAgainstForeignRoot(t *testing.T) {
	issuer, _, _ := newTestIssuer(t, NewOperatingSystemFileSystem())
	issued, err := issuer.IssueCertificate(context.Background(), CertificateRequest{Hosts: []string{"example.com"}})
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}

	foreignManager := NewCertificateAuthorityManager(
		NewOperatingSystemFileSystem(),
		fixedClock{now: testIssuanceTime},
		rand.Reader,
		NewSerialNumberGenerator(rand.Reader),
		newTestAuthorityConfiguration(filepath.Join(t.TempDir(), "foreign")),
	)
	foreignAuthority, foreignErr := foreignManager.EnsureCertificateAuthority(context.Background())
	if foreignErr != nil {
		t.Fatalf("create foreign authority: %v", foreignErr)
	}

	report, inspectErr := InspectCertificate(issued.CertificatePEM, foreignAuthority.Certificate(), testIssuanceTime)
	if inspectErr != nil {
		t.Fatalf("inspect certificate: %v", inspectErr)
	}
	if report.ChainValid || report.ChainError == "" {
		t.Fatalf("expected chain failure against a foreign root")
	}

	missingReport, missingErr := InspectCertificate(issued.CertificatePEM, nil, testIssuanceTime)
	if missingErr != nil {
		t.Fatalf("inspect certificate: %v", missingErr)
	}
	if missingReport.ChainValid || missingReport.ChainError == "" {
		t.Fatalf("expected chain failure without a root")
	}
}

func TestInspectCertificateRejectsGarbage(t *testing.T) {
	if _, err := InspectCertificate([]byte("garbage"), nil, testIssuanceTime); err == nil {
		t.Fatalf("expected parse failure")
	}
}
