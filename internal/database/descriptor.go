package database

import (
	"net/url"
)

// Descriptor identifies a SQL Server endpoint and the credentials used to
// log in to it. It is an immutable value: the With* methods return a copy.
// Correctness is checked by the Connector, never here.
type Descriptor struct {
	ApplicationName *string
	Host            string
	InstanceName    string
	Database        *string
	Username        string
	Password        string

	// TrustServerCertificate skips TLS certificate validation.
	TrustServerCertificate bool
}

// NewDescriptor returns an empty descriptor that trusts the server certificate.
func NewDescriptor() Descriptor {
	return Descriptor{TrustServerCertificate: true}
}

func (d Descriptor) WithApplicationName(name string) Descriptor {
	d.ApplicationName = &name
	return d
}

func (d Descriptor) WithHost(host string) Descriptor {
	d.Host = host
	return d
}

func (d Descriptor) WithInstanceName(instance string) Descriptor {
	d.InstanceName = instance
	return d
}

func (d Descriptor) WithDatabase(database string) Descriptor {
	d.Database = &database
	return d
}

// WithAuth sets SQL Server authentication credentials.
func (d Descriptor) WithAuth(username, password string) Descriptor {
	d.Username = username
	d.Password = password
	return d
}

func (d Descriptor) WithTrustServerCertificate(trust bool) Descriptor {
	d.TrustServerCertificate = trust
	return d
}

// URL converts the descriptor into a sqlserver:// URL understood by the
// transport. The instance travels in the path, which makes the driver
// resolve its port through the SQL Server Browser.
func (d Descriptor) URL() *url.URL {
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   d.Host,
	}
	if d.Username != "" || d.Password != "" {
		u.User = url.UserPassword(d.Username, d.Password)
	}
	if d.InstanceName != "" {
		u.Path = "/" + d.InstanceName
	}

	q := url.Values{}
	if d.Database != nil {
		q.Set("database", *d.Database)
	}
	if d.ApplicationName != nil {
		q.Set("app name", *d.ApplicationName)
	}
	if d.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	u.RawQuery = q.Encode()
	return u
}

// PublicDescriptor is the shareable view of a Descriptor. The password is
// never part of it.
type PublicDescriptor struct {
	Host            *string `json:"host"`
	Database        *string `json:"database"`
	InstanceName    *string `json:"instanceName"`
	ApplicationName *string `json:"applicationName"`
	User            *string `json:"user"`
}

// Public returns the descriptor without its password. Empty required
// fields are reported as null.
func (d Descriptor) Public() PublicDescriptor {
	return PublicDescriptor{
		Host:            nonEmpty(d.Host),
		Database:        d.Database,
		InstanceName:    nonEmpty(d.InstanceName),
		ApplicationName: d.ApplicationName,
		User:            nonEmpty(d.Username),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
