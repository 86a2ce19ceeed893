package locator

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mongoscan/pkg/apperr"
)

const (
	maxHostnameLength   = 253
	maxDatabaseLength   = 64
	maxCollectionLength = 120
	databaseForbidden   = "/\\. \"$*<>:|?"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,251}[a-zA-Z0-9])?$`)

func malformed(format string, args ...interface{}) error {
	return apperr.Newf(apperr.KindMalformedLocator, "locator.Parse", format, args...)
}

// Parse turns a locator string into a Locator. It performs no I/O and never
// falls back to a default database or collection.
func Parse(raw string) (*Locator, error) {
	loc := &Locator{
		ConnectTimeout: DefaultConnectTimeout,
		SocketTimeout:  DefaultSocketTimeout,
		Options:        map[string]string{},
	}

	var rest string
	switch {
	case strings.HasPrefix(raw, SchemeSRV+"://"):
		loc.Scheme = SchemeSRV
		rest = raw[len(SchemeSRV)+3:]
	case strings.HasPrefix(raw, SchemeStandard+"://"):
		loc.Scheme = SchemeStandard
		rest = raw[len(SchemeStandard)+3:]
	default:
		return nil, malformed("unsupported scheme in %q", redactRaw(raw))
	}

	sep := strings.IndexAny(rest, "/?")
	if sep < 0 || rest[sep] != '/' {
		return nil, malformed("missing /database/collection path")
	}
	authority, remainder := rest[:sep], rest[sep+1:]

	if at := strings.LastIndex(authority, "@"); at >= 0 {
		creds, err := parseUserinfo(authority[:at])
		if err != nil {
			return nil, err
		}
		loc.Credentials = creds
		authority = authority[at+1:]
	}

	hosts, err := parseHosts(authority, loc.IsSRV())
	if err != nil {
		return nil, err
	}
	loc.Hosts = hosts

	path, rawQuery, _ := strings.Cut(remainder, "?")
	if err := loc.parsePath(path); err != nil {
		return nil, err
	}
	if err := loc.parseQuery(rawQuery); err != nil {
		return nil, err
	}
	return loc, nil
}

func parseUserinfo(userinfo string) (*Credentials, error) {
	user, pass, _ := strings.Cut(userinfo, ":")
	username, err := url.PathUnescape(user)
	if err != nil {
		return nil, malformed("invalid username encoding")
	}
	password, err := url.PathUnescape(pass)
	if err != nil {
		return nil, malformed("invalid password encoding")
	}
	if username == "" {
		return nil, malformed("empty username")
	}
	return &Credentials{Username: username, Password: password}, nil
}

func parseHosts(authority string, srv bool) ([]Host, error) {
	if authority == "" {
		return nil, malformed("empty host list")
	}

	var hosts []Host
	for _, entry := range strings.Split(authority, ",") {
		h, explicitPort, err := parseHost(entry)
		if err != nil {
			return nil, err
		}
		if srv && explicitPort {
			return nil, malformed("%s locators must not specify a port", SchemeSRV)
		}
		hosts = append(hosts, h)
	}

	if srv && len(hosts) != 1 {
		return nil, malformed("%s locators take exactly one host", SchemeSRV)
	}
	return hosts, nil
}

func parseHost(entry string) (Host, bool, error) {
	if entry == "" {
		return Host{}, false, malformed("empty host entry")
	}

	name, portText := entry, ""
	if strings.HasPrefix(entry, "[") {
		end := strings.Index(entry, "]")
		if end < 0 {
			return Host{}, false, malformed("unterminated IPv6 literal %q", entry)
		}
		name = entry[1:end]
		tail := entry[end+1:]
		if tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return Host{}, false, malformed("invalid host %q", entry)
			}
			portText = tail[1:]
		}
		if ip := net.ParseIP(name); ip == nil || ip.To4() != nil {
			return Host{}, false, malformed("invalid IPv6 address %q", name)
		}
	} else {
		var hasPort bool
		name, portText, hasPort = strings.Cut(entry, ":")
		if hasPort && portText == "" {
			return Host{}, false, malformed("empty port in %q", entry)
		}
		if !validHostname(name) {
			return Host{}, false, malformed("invalid hostname %q", name)
		}
	}

	if portText == "" {
		return Host{Name: name, Port: DefaultPort}, false, nil
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port < 1 || port > 65535 {
		return Host{}, false, malformed("invalid port %q", portText)
	}
	return Host{Name: name, Port: port}, true, nil
}

func validHostname(name string) bool {
	if name == "" || len(name) > maxHostnameLength {
		return false
	}
	return name == "localhost" || hostnamePattern.MatchString(name)
}

func (l *Locator) parsePath(path string) error {
	dbPart, collPart, ok := strings.Cut(path, "/")
	if !ok {
		return malformed("missing collection in path")
	}

	database, err := url.PathUnescape(dbPart)
	if err != nil {
		return malformed("invalid database encoding")
	}
	collection, err := url.PathUnescape(collPart)
	if err != nil {
		return malformed("invalid collection encoding")
	}

	if err := ValidateDatabaseName(database); err != nil {
		return err
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	l.Database = database
	l.Collection = collection
	return nil
}

// ValidateDatabaseName applies MongoDB database naming restrictions.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return malformed("empty database name")
	}
	if len(name) > maxDatabaseLength {
		return malformed("database name longer than %d characters", maxDatabaseLength)
	}
	if strings.ContainsAny(name, databaseForbidden) || strings.ContainsRune(name, 0) {
		return malformed("database name %q contains a forbidden character", name)
	}
	return nil
}

// ValidateCollectionName applies MongoDB collection naming restrictions.
func ValidateCollectionName(name string) error {
	if name == "" {
		return malformed("empty collection name")
	}
	if len(name) > maxCollectionLength {
		return malformed("collection name longer than %d characters", maxCollectionLength)
	}
	if strings.HasPrefix(name, "$") {
		return malformed("collection name %q starts with $", name)
	}
	if strings.ContainsRune(name, 0) {
		return malformed("collection name contains NUL")
	}
	return nil
}

func (l *Locator) parseQuery(rawQuery string) error {
	if rawQuery == "" {
		return nil
	}

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			return malformed("option %q has no value", pair)
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return malformed("invalid option key encoding %q", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return malformed("invalid value encoding for option %q", key)
		}

		switch strings.ToLower(key) {
		case "authsource":
			l.AuthSource = value
		case "replicaset":
			l.ReplicaSet = value
		case "tls", "ssl":
			enabled, err := parseFlag(value)
			if err != nil {
				return malformed("option %s: %v", key, err)
			}
			l.TLS = enabled
		case "connecttimeoutms":
			d, err := parseMillis(value)
			if err != nil {
				return malformed("option %s: %v", key, err)
			}
			l.ConnectTimeout = d
		case "sockettimeoutms":
			d, err := parseMillis(value)
			if err != nil {
				return malformed("option %s: %v", key, err)
			}
			l.SocketTimeout = d
		default:
			l.Options[key] = value
		}
	}
	return nil
}

func parseFlag(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected a boolean, got %q", value)
}

func parseMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(value)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("expected a positive millisecond count, got %q", value)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// redactRaw hides user info from an unparsed locator before it reaches an error message.
func redactRaw(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	end := strings.IndexAny(rest, "/?")
	if end < 0 {
		end = len(rest)
	}
	if at := strings.LastIndex(rest[:end], "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return raw
}
