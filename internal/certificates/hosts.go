package certificates

import (
	"crypto/x509"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// HostType classifies a requested host into a subject alternative name kind.
type HostType int

const (
	HostTypeDNS HostType = iota
	HostTypeIP
	HostTypeEmail
	HostTypeURI
)

func (hostType HostType) String() string {
	switch hostType {
	case HostTypeIP:
		return "ip"
	case HostTypeEmail:
		return "email"
	case HostTypeURI:
		return "uri"
	default:
		return "dns"
	}
}

var hostnamePattern = regexp.MustCompile(`(?i)^(\*\.)?[0-9a-z_-]([0-9a-z._-]*[0-9a-z_-])?$`)

// SubjectAlternativeName is one classified host.
type SubjectAlternativeName struct {
	Type  HostType
	Raw   string
	Value string
	IP    net.IP
	URI   *url.URL
}

// Classify maps a raw host onto exactly one HostType. It never fails; see Validate.
func Classify(raw string) SubjectAlternativeName {
	if ip := net.ParseIP(raw); ip != nil {
		return SubjectAlternativeName{Type: HostTypeIP, Raw: raw, Value: ip.String(), IP: ip}
	}
	if strings.Contains(raw, "@") && strings.Contains(raw, ".") {
		return SubjectAlternativeName{Type: HostTypeEmail, Raw: raw, Value: raw}
	}
	if strings.Contains(raw, "://") {
		parsedURI, _ := url.Parse(raw)
		return SubjectAlternativeName{Type: HostTypeURI, Raw: raw, Value: raw, URI: parsedURI}
	}
	return SubjectAlternativeName{Type: HostTypeDNS, Raw: raw, Value: raw}
}

// Validate checks the classified entry and normalizes DNS names, email domains, and URI
// hosts to their ASCII form.
func (name *SubjectAlternativeName) Validate() error {
	switch name.Type {
	case HostTypeIP:
		return validateWithHost(name.Raw, ValidateIPAddress(name.IP))
	case HostTypeEmail:
		if err := ValidateEmailAddress(name.Raw); err != nil {
			return validateWithHost(name.Raw, err)
		}
		separatorIndex := strings.LastIndex(name.Raw, "@")
		asciiDomain, err := DomainToASCII(name.Raw[separatorIndex+1:])
		if err != nil {
			return &InvalidHostnameError{Host: name.Raw, Reason: err.Error()}
		}
		name.Value = name.Raw[:separatorIndex+1] + asciiDomain
		return nil
	case HostTypeURI:
		if err := ValidateURI(name.Raw); err != nil {
			return validateWithHost(name.Raw, err)
		}
		return name.normalizeURIHost()
	default:
		asciiName, err := DomainToASCII(name.Raw)
		if err != nil {
			return &InvalidHostnameError{Host: name.Raw, Reason: err.Error()}
		}
		if err := ValidateWildcardDepth(asciiName); err != nil {
			return validateWithHost(name.Raw, err)
		}
		if err := ValidateHostname(asciiName); err != nil {
			return validateWithHost(name.Raw, err)
		}
		name.Value = asciiName
		return nil
	}
}

func (name *SubjectAlternativeName) normalizeURIHost() error {
	parsedURI, err := url.Parse(name.Raw)
	if err != nil {
		return &InvalidHostnameError{Host: name.Raw, Reason: "uri cannot be parsed"}
	}
	if !isASCII(parsedURI.Host) {
		asciiHost, err := DomainToASCII(parsedURI.Hostname())
		if err != nil {
			return &InvalidHostnameError{Host: name.Raw, Reason: err.Error()}
		}
		if port := parsedURI.Port(); port != "" {
			asciiHost = net.JoinHostPort(asciiHost, port)
		}
		parsedURI.Host = asciiHost
	}
	if !isASCII(parsedURI.String()) {
		return &InvalidHostnameError{Host: name.Raw, Reason: "uri contains characters that cannot be encoded"}
	}
	name.URI = parsedURI
	name.Value = parsedURI.String()
	return nil
}

func isASCII(value string) bool {
	for index := 0; index < len(value); index++ {
		if value[index] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func validateWithHost(host string, err error) error {
	if err == nil {
		return nil
	}
	if invalidErr, ok := err.(*InvalidHostnameError); ok {
		return &InvalidHostnameError{Host: host, Reason: invalidErr.Reason}
	}
	return &InvalidHostnameError{Host: host, Reason: err.Error()}
}

// ValidateHostname accepts an optional leading "*." followed by letters, digits, hyphens,
// underscores, and dots.
func ValidateHostname(name string) error {
	if name == "" {
		return &InvalidHostnameError{Host: name, Reason: "hostname is empty"}
	}
	if !hostnamePattern.MatchString(name) {
		return &InvalidHostnameError{Host: name, Reason: "hostname contains unsupported characters"}
	}
	return nil
}

// ValidateWildcardDepth permits at most one wildcard, and only as the leading label.
func ValidateWildcardDepth(name string) error {
	wildcardCount := strings.Count(name, "*")
	if wildcardCount == 0 {
		return nil
	}
	if wildcardCount > 1 {
		return &InvalidHostnameError{Host: name, Reason: "multiple wildcard labels are not supported"}
	}
	if !strings.HasPrefix(name, "*.") {
		return &InvalidHostnameError{Host: name, Reason: "wildcard is only supported as the leading label"}
	}
	return nil
}

// ValidateEmailAddress requires a non-empty ASCII local part and a dotted domain. The domain
// may be internationalized.
func ValidateEmailAddress(address string) error {
	separatorIndex := strings.LastIndex(address, "@")
	if separatorIndex <= 0 {
		return &InvalidHostnameError{Host: address, Reason: "email address requires a local part"}
	}
	if strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return &InvalidHostnameError{Host: address, Reason: "email address contains whitespace"}
	}
	if !isASCII(address[:separatorIndex]) {
		return &InvalidHostnameError{Host: address, Reason: "email local part must be ASCII"}
	}
	domain := address[separatorIndex+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return &InvalidHostnameError{Host: address, Reason: "email address requires a dotted domain"}
	}
	return nil
}

// ValidateURI requires a scheme and a whitespace-free host.
func ValidateURI(rawURI string) error {
	parsedURI, err := url.Parse(rawURI)
	if err != nil {
		return &InvalidHostnameError{Host: rawURI, Reason: "uri cannot be parsed"}
	}
	if parsedURI.Scheme == "" {
		return &InvalidHostnameError{Host: rawURI, Reason: "uri requires a scheme"}
	}
	if parsedURI.Host == "" {
		return &InvalidHostnameError{Host: rawURI, Reason: "uri requires a host"}
	}
	if strings.IndexFunc(parsedURI.Host, unicode.IsSpace) >= 0 {
		return &InvalidHostnameError{Host: rawURI, Reason: "uri host contains whitespace"}
	}
	return nil
}

// ValidateIPAddress accepts any IPv4 or IPv6 address.
func ValidateIPAddress(ip net.IP) error {
	if ip == nil || (ip.To4() == nil && len(ip) != net.IPv6len) {
		return &InvalidHostnameError{Host: ip.String(), Reason: "not an IP address"}
	}
	return nil
}

// DomainToASCII converts internationalized labels to Punycode. ASCII input is returned unchanged.
func DomainToASCII(domain string) (string, error) {
	return idna.ToASCII(domain)
}

// DomainToUnicode converts Punycode labels back to Unicode for display. Input that
// cannot be decoded is returned unchanged.
func DomainToUnicode(domain string) string {
	unicodeDomain, err := idna.ToUnicode(domain)
	if err != nil {
		return domain
	}
	return unicodeDomain
}

// BuildSubjectAlternativeNames classifies and validates hosts in order. The first invalid
// host aborts the whole list.
func BuildSubjectAlternativeNames(hosts []string) ([]SubjectAlternativeName, error) {
	if len(hosts) == 0 {
		return nil, ErrEmptyHostList
	}
	names := make([]SubjectAlternativeName, 0, len(hosts))
	for _, host := range hosts {
		name := Classify(host)
		if err := name.Validate(); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func applySubjectAlternativeNames(template *x509.Certificate, names []SubjectAlternativeName) {
	for _, name := range names {
		switch name.Type {
		case HostTypeIP:
			template.IPAddresses = append(template.IPAddresses, name.IP)
		case HostTypeEmail:
			template.EmailAddresses = append(template.EmailAddresses, name.Value)
		case HostTypeURI:
			template.URIs = append(template.URIs, name.URI)
		default:
			template.DNSNames = append(template.DNSNames, name.Value)
		}
	}
}
