package sqlserver

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// JDBCPrefix marks a JDBC-style connection string.
const JDBCPrefix = "jdbc:sqlserver://"

// Style is the grammar a connection string override is parsed with.
type Style int

const (
	StyleADO Style = iota
	StyleJDBC
)

func (s Style) String() string {
	if s == StyleJDBC {
		return "jdbc"
	}
	return "ado"
}

// DetectStyle routes s to the JDBC grammar when it starts with JDBCPrefix
// and to the ADO.NET grammar otherwise.
func DetectStyle(s string) Style {
	if strings.HasPrefix(s, JDBCPrefix) {
		return StyleJDBC
	}
	return StyleADO
}

// ParseOverride parses a connection string override into a transport
// configuration. Every failure is an ErrKindInvalidConnectionString.
func ParseOverride(s string) (msdsn.Config, Style, error) {
	style := DetectStyle(s)

	var (
		cfg msdsn.Config
		err error
	)
	switch style {
	case StyleJDBC:
		cfg, err = parseJDBC(s)
	default:
		cfg, err = parseADO(s)
	}
	if err != nil {
		return msdsn.Config{}, style, errs.Wrap(
			errs.ErrKindInvalidConnectionString,
			fmt.Sprintf("invalid connection string (%v): expected a JDBC (jdbc:sqlserver://...) or ADO.NET (key=value;...) connection string", err),
			err,
		)
	}
	return cfg, style, nil
}

// FromDescriptor builds the transport configuration for d.
func FromDescriptor(d database.Descriptor) (msdsn.Config, error) {
	cfg, err := msdsn.Parse(d.URL().String())
	if err != nil {
		return msdsn.Config{}, errs.Wrap(errs.ErrKindInvalidInput, "invalid connection settings", err)
	}
	return cfg, nil
}

// --- ADO.NET ---

func parseADO(s string) (msdsn.Config, error) {
	segments, err := splitSegments(s, ';')
	if err != nil {
		return msdsn.Config{}, err
	}

	pairs := 0
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		key, _, ok := strings.Cut(seg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return msdsn.Config{}, fmt.Errorf("segment %d is not a key=value pair", pairs+1)
		}
		pairs++
	}
	if pairs == 0 {
		return msdsn.Config{}, errors.New("no key=value pairs")
	}

	return msdsn.Parse(s)
}

// splitSegments splits s on sep outside quoted values. A quote opens a
// quoted value only when it is the first non-space character after the
// segment's '='; quotes inside a bare value are literal.
func splitSegments(s string, sep rune) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		inValue bool // '=' seen in this segment
		started bool // value has a non-space character
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == sep:
			out = append(out, cur.String())
			cur.Reset()
			inValue, started = false, false
			continue
		case !inValue:
			inValue = r == '='
		case !started && (r == '"' || r == '\''):
			quote = r
			started = true
		case !started && !unicode.IsSpace(r):
			started = true
		}
		cur.WriteRune(r)
	}
	if quote != 0 {
		return nil, errors.New("unterminated quoted value")
	}
	return append(out, cur.String()), nil
}

// --- JDBC ---

// jdbcParams maps JDBC property names (lower-cased) to the parameter names
// the transport understands.
var jdbcParams = map[string]string{
	"databasename":           "database",
	"database":               "database",
	"applicationname":        "app name",
	"encrypt":                "encrypt",
	"trustservercertificate": "TrustServerCertificate",
	"hostnameincertificate":  "hostnameincertificate",
	"logintimeout":           "dial timeout",
	"packetsize":             "packet size",
	"applicationintent":      "ApplicationIntent",
	"failoverpartner":        "failoverpartner",
	"multisubnetfailover":    "multisubnetfailover",
	"workstationid":          "workstation id",
}

// parseJDBC translates
//
//	jdbc:sqlserver://[server[\instance][:port]][;property=value[;...]]
//
// into a sqlserver:// URL and parses that.
func parseJDBC(s string) (msdsn.Config, error) {
	body := strings.TrimPrefix(s, JDBCPrefix)

	parts, err := splitJDBC(body)
	if err != nil {
		return msdsn.Config{}, err
	}

	host, instance, port, err := splitServer(parts[0])
	if err != nil {
		return msdsn.Config{}, err
	}

	var user, password string
	hasUser := false
	q := url.Values{}

	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "" {
			continue
		}
		key, val, ok := strings.Cut(p, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return msdsn.Config{}, fmt.Errorf("property %q is not a key=value pair", strings.TrimSpace(p))
		}
		val = unbrace(strings.TrimSpace(val))

		switch key {
		case "user", "username":
			user, hasUser = val, true
		case "password":
			password, hasUser = val, true
		case "servername":
			if host == "" {
				host = val
			}
		case "instancename":
			if instance == "" {
				instance = val
			}
		case "portnumber", "port":
			if port == "" {
				port = val
			}
		default:
			if name, ok := jdbcParams[key]; ok {
				q.Set(name, val)
			} else {
				q.Set(key, val)
			}
		}
	}

	if host == "" {
		return msdsn.Config{}, errors.New("server name is required")
	}
	if port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return msdsn.Config{}, fmt.Errorf("invalid port %q", port)
		}
		host = net.JoinHostPort(host, port)
	}

	u := &url.URL{Scheme: "sqlserver", Host: host, RawQuery: q.Encode()}
	if instance != "" {
		u.Path = "/" + instance
	}
	if hasUser {
		u.User = url.UserPassword(user, password)
	}
	return msdsn.Parse(u.String())
}

// splitJDBC splits the body on ';' outside {braced} values.
func splitJDBC(body string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		brace bool
	)
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case brace:
			if r == '}' {
				if i+1 < len(runes) && runes[i+1] == '}' {
					cur.WriteString("}}")
					i++
					continue
				}
				brace = false
			}
			cur.WriteRune(r)
		case r == '{':
			brace = true
			cur.WriteRune(r)
		case r == ';':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if brace {
		return nil, errors.New("unterminated braced value")
	}
	return append(out, cur.String()), nil
}

func unbrace(v string) string {
	if len(v) >= 2 && v[0] == '{' && v[len(v)-1] == '}' {
		return strings.ReplaceAll(v[1:len(v)-1], "}}", "}")
	}
	return v
}

// splitServer splits "host[\instance][:port]"; IPv6 hosts use brackets.
func splitServer(s string) (host, instance, port string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", "", nil
	}

	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", "", "", errors.New("unterminated IPv6 address")
		}
		host, s = s[1:end], s[end+1:]
	} else {
		i := strings.IndexAny(s, `\:`)
		if i < 0 {
			return s, "", "", nil
		}
		host, s = s[:i], s[i:]
	}

	if strings.HasPrefix(s, `\`) {
		s = s[1:]
		if i := strings.Index(s, ":"); i >= 0 {
			instance, s = s[:i], s[i:]
		} else {
			instance, s = s, ""
		}
	}
	if strings.HasPrefix(s, ":") {
		port = s[1:]
		s = ""
	}
	if s != "" {
		return "", "", "", fmt.Errorf("unexpected %q in server name", s)
	}
	return host, instance, port, nil
}
