package app

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigurationManagerEnvironment(t *testing.T) {
	testCases := []struct {
		name                string
		environment         map[string]string
		expectedCARoot      string
		expectedTrustStores string
	}{
		{
			name:                "defaults",
			environment:         map[string]string{},
			expectedCARoot:      "/default/devcert",
			expectedTrustStores: defaultTrustStores,
		},
		{
			name:                "legacy variables",
			environment:         map[string]string{"CAROOT": "/legacy/ca", "TRUST_STORES": "nss"},
			expectedCARoot:      "/legacy/ca",
			expectedTrustStores: "nss",
		},
		{
			name:                "prefixed variables win over legacy ones",
			environment:         map[string]string{"CAROOT": "/legacy/ca", "DEVCERT_CA_ROOT": "/prefixed/ca"},
			expectedCARoot:      "/prefixed/ca",
			expectedTrustStores: defaultTrustStores,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(testingInstance *testing.T) {
			for _, name := range []string{"CAROOT", "TRUST_STORES", "DEVCERT_CA_ROOT", "DEVCERT_TRUSTSTORE_TARGETS"} {
				testingInstance.Setenv(name, testCase.environment[name])
			}
			configurationManager := newConfigurationManager("/default/devcert")
			if actual := configurationManager.GetString(configKeyCARoot); actual != testCase.expectedCARoot {
				testingInstance.Fatalf("expected CA root %s, got %s", testCase.expectedCARoot, actual)
			}
			if actual := configurationManager.GetString(configKeyTrustStoreTargets); actual != testCase.expectedTrustStores {
				testingInstance.Fatalf("expected trust stores %s, got %s", testCase.expectedTrustStores, actual)
			}
		})
	}
}

func TestDefaultCARootDirectory(t *testing.T) {
	dataHome := t.TempDir()
	localAppData := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv("LOCALAPPDATA", localAppData)

	testCases := []struct {
		operatingSystem string
		expected        string
	}{
		{operatingSystem: "linux", expected: filepath.Join(dataHome, "devcert")},
		{operatingSystem: "windows", expected: filepath.Join(localAppData, "devcert")},
	}
	for _, testCase := range testCases {
		actual, err := defaultCARootDirectory(testCase.operatingSystem)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", testCase.operatingSystem, err)
		}
		if actual != testCase.expected {
			t.Fatalf("%s: expected %s, got %s", testCase.operatingSystem, testCase.expected, actual)
		}
	}
}

func TestConfigurationFileSelectsKeyAlgorithm(t *testing.T) {
	resources := newTestResources(t, stubDriverFactory())
	configDirectory := t.TempDir()
	configPath := filepath.Join(configDirectory, "devcert.yaml")
	caRoot := filepath.Join(configDirectory, "ca")
	configContent := "ca:\n  root: " + caRoot + "\ncertificate:\n  key_algorithm: ecdsa\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	certificatePath := filepath.Join(configDirectory, "config.pem")

	if _, err := executeCommand(t, resources, "--config", configPath, "--cert-file", certificatePath, "--key-file", filepath.Join(configDirectory, "config-key.pem"), "config.test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	certificatePEM, err := os.ReadFile(certificatePath)
	if err != nil {
		t.Fatalf("read certificate: %v", err)
	}
	block, _ := pem.Decode(certificatePEM)
	if block == nil {
		t.Fatalf("expected a PEM block")
	}
	certificate, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if certificate.PublicKeyAlgorithm != x509.ECDSA {
		t.Fatalf("expected an ECDSA leaf, got %s", certificate.PublicKeyAlgorithm)
	}
	if _, statErr := os.Stat(filepath.Join(caRoot, "rootCA.pem")); statErr != nil {
		t.Fatalf("expected the configured CA root to be used: %v", statErr)
	}
}
