package locator

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	SchemeStandard = "mongodb"
	SchemeSRV      = "mongodb+srv"

	DefaultPort           = 27017
	DefaultConnectTimeout = 30 * time.Second
	DefaultSocketTimeout  = 30 * time.Second
)

// Host is one entry of the seed list.
type Host struct {
	Name string
	Port int
}

// Credentials holds the decoded user info of a locator.
type Credentials struct {
	Username string
	Password string
}

// Locator identifies a deployment, a database and a collection.
// Values returned by Parse are never mutated afterwards.
type Locator struct {
	Scheme      string
	Credentials *Credentials
	Hosts       []Host
	Database    string
	Collection  string

	AuthSource     string
	ReplicaSet     string
	TLS            bool
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration

	// Options holds unrecognized query keys, forwarded verbatim to the driver.
	Options map[string]string
}

// IsSRV reports whether the locator uses DNS seed list discovery.
func (l *Locator) IsSRV() bool {
	return l.Scheme == SchemeSRV
}

// Namespace returns "database.collection".
func (l *Locator) Namespace() string {
	return l.Database + "." + l.Collection
}

// String renders the canonical form, collection included. Parse(l.String())
// yields a locator equal to l.
func (l *Locator) String() string {
	return l.render(true, false)
}

// ConnectionString renders a driver-compatible URI: database only, no collection.
func (l *Locator) ConnectionString() string {
	return l.render(false, false)
}

// Redacted renders the canonical form with the password masked.
func (l *Locator) Redacted() string {
	return l.render(true, true)
}

// Key is the pool registry key. Tables on the same database share it.
func (l *Locator) Key() string {
	return l.ConnectionString()
}

func (l *Locator) render(withCollection, redact bool) string {
	var b strings.Builder
	b.WriteString(l.Scheme)
	b.WriteString("://")

	if l.Credentials != nil {
		b.WriteString(escapeUserinfo(l.Credentials.Username))
		if redact {
			b.WriteString(":***")
		} else if l.Credentials.Password != "" {
			b.WriteString(":")
			b.WriteString(escapeUserinfo(l.Credentials.Password))
		}
		b.WriteString("@")
	}

	for i, h := range l.Hosts {
		if i > 0 {
			b.WriteString(",")
		}
		if strings.Contains(h.Name, ":") {
			b.WriteString("[" + h.Name + "]")
		} else {
			b.WriteString(h.Name)
		}
		if !l.IsSRV() && h.Port != DefaultPort {
			b.WriteString(":" + strconv.Itoa(h.Port))
		}
	}

	b.WriteString("/")
	b.WriteString(url.PathEscape(l.Database))
	if withCollection {
		b.WriteString("/")
		b.WriteString(url.PathEscape(l.Collection))
	}

	if q := l.query(); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	return b.String()
}

func (l *Locator) query() string {
	var pairs []string
	add := func(k, v string) {
		pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}

	if l.AuthSource != "" {
		add("authSource", l.AuthSource)
	}
	if l.ReplicaSet != "" {
		add("replicaSet", l.ReplicaSet)
	}
	if l.TLS {
		add("tls", "true")
	}
	if l.ConnectTimeout != DefaultConnectTimeout {
		add("connectTimeoutMS", strconv.FormatInt(l.ConnectTimeout.Milliseconds(), 10))
	}
	if l.SocketTimeout != DefaultSocketTimeout {
		add("socketTimeoutMS", strconv.FormatInt(l.SocketTimeout.Milliseconds(), 10))
	}

	keys := make([]string, 0, len(l.Options))
	for k := range l.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, l.Options[k])
	}
	return strings.Join(pairs, "&")
}

// escapeUserinfo percent-encodes every reserved character, including space.
func escapeUserinfo(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
