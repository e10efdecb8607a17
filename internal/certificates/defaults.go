package certificates

import "time"

const (
	DefaultCertificateDirectoryName              = "devcert"
	DefaultRootCertificateFileName               = "rootCA.pem"
	DefaultRootPrivateKeyFileName                = "rootCA-key.pem"
	DefaultRootLockFileName                      = ".rootCA.lock"
	DefaultCertificateAuthorityOrganization      = "devcert development CA"
	DefaultLeafCertificateOrganization           = "devcert development certificate"
	DefaultCertificateAuthorityValidityDuration  = 10 * 365 * 24 * time.Hour
	DefaultLeafCertificateValidityDuration       = (730 + 90) * 24 * time.Hour
	DefaultExpiringSoonWindow                    = 30 * 24 * time.Hour
	MinimumRootRSAKeyBitSize                     = 3072
	DefaultLeafRSAKeyBitSize                     = 2048
	uniqueNamePrefix                             = "devcert_development_CA_"
	certificatePemBlockType                      = "CERTIFICATE"
	privateKeyPemBlockType                       = "PRIVATE KEY"
	certificateRequestPemBlockType               = "CERTIFICATE REQUEST"
	legacyCertificateRequestPemBlockType         = "NEW CERTIFICATE REQUEST"
	defaultCertificateSerialNumberUpperBitLen    = 128
	defaultMaximumSerialNumberGenerationAttempts = 16
	certificateOutputExtension                   = ".pem"
	privateKeyOutputSuffix                       = "-key.pem"
	pkcs12OutputExtension                        = ".p12"
)
