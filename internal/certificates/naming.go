package certificates

import (
	"path/filepath"
	"strconv"
	"strings"
)

var outputNameReplacer = strings.NewReplacer(
	"*", "_wildcard",
	":", "_",
	"/", "_",
	"\\", "_",
	"?", "_",
	"%", "_",
	"|", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	" ", "_",
)

// OutputPaths locates the files written for one certificate.
type OutputPaths struct {
	CertificatePath string
	PrivateKeyPath  string
	PKCS12Path      string
}

// DefaultOutputBaseName derives a file name stem from the requested hosts: the first host
// made safe for file systems, suffixed with "+N" when N further hosts were requested.
func DefaultOutputBaseName(hosts []string) string {
	if len(hosts) == 0 {
		return ""
	}
	baseName := outputNameReplacer.Replace(hosts[0])
	if len(hosts) > 1 {
		baseName += "+" + strconv.Itoa(len(hosts)-1)
	}
	return baseName
}

// DefaultOutputPaths places the default certificate, key, and PKCS12 names inside directory.
func DefaultOutputPaths(directory string, hosts []string) OutputPaths {
	baseName := DefaultOutputBaseName(hosts)
	return OutputPaths{
		CertificatePath: filepath.Join(directory, baseName+certificateOutputExtension),
		PrivateKeyPath:  filepath.Join(directory, baseName+privateKeyOutputSuffix),
		PKCS12Path:      filepath.Join(directory, baseName+pkcs12OutputExtension),
	}
}
