package tenants

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Provisioning stages, reported on failure so an operator can tell where a
// tenant database setup broke without the response leaking internals.
const (
	StageCreating = "creating"
	StageSecuring = "securing"
)

// ProvisioningError is a stage-tagged tenant database setup failure.
type ProvisioningError struct {
	Stage    string
	Database string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("error %s database %q: %v", e.Stage, e.Database, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// securityDoc restricts a tenant database to its owning identity.
type securityDoc struct {
	Admins  securityRoles `json:"admins"`
	Members securityRoles `json:"members"`
}

type securityRoles struct {
	Names []string `json:"names"`
	Roles []string `json:"roles"`
}

// Provisioner creates and secures per-tenant backing databases through the
// document backend's admin HTTP API. Creation is idempotent: the backend
// answers 201 for a fresh database and 412 for one that already exists, and
// both count as success.
type Provisioner struct {
	baseURL    string
	prefix     string
	adminUser  string
	adminPass  string
	client     *http.Client
	timeout    time.Duration
	registered sync.Map // dbName -> struct{}, dbs known to exist
}

// ProvisionerOption modifies a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(client *http.Client) ProvisionerOption {
	return func(p *Provisioner) {
		p.client = client
	}
}

// WithCallTimeout sets the per-request timeout for admin API calls.
func WithCallTimeout(timeout time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		p.timeout = timeout
	}
}

// NewProvisioner creates a Provisioner for the backend at baseURL. Every
// database it creates is named prefix + Name(identity, origin).
func NewProvisioner(baseURL, prefix, adminUser, adminPass string, options ...ProvisionerOption) *Provisioner {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	p := &Provisioner{
		baseURL:   baseURL,
		prefix:    prefix,
		adminUser: adminUser,
		adminPass: adminPass,
		client:    http.DefaultClient,
		timeout:   10 * time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// DatabaseName returns the backing database name for an (identity, origin)
// pair, including the configured prefix.
func (p *Provisioner) DatabaseName(identity, origin string) string {
	return p.prefix + Name(identity, origin)
}

// Ensure lazily creates and secures the tenant database for (identity,
// origin) and returns its name. Safe to call on every request; already
// provisioned databases are remembered and skipped.
func (p *Provisioner) Ensure(ctx context.Context, identity, origin string) (string, error) {
	dbName := p.DatabaseName(identity, origin)
	if _, ok := p.registered.Load(dbName); ok {
		return dbName, nil
	}

	if err := p.createDatabase(ctx, dbName); err != nil {
		return "", err
	}
	if err := p.secureDatabase(ctx, dbName, identity); err != nil {
		return "", err
	}

	log.Info().Str("db", dbName).Msg("Provisioned tenant database")
	p.registered.Store(dbName, struct{}{})
	return dbName, nil
}

func (p *Provisioner) createDatabase(ctx context.Context, dbName string) error {
	status, err := p.do(ctx, http.MethodPut, dbName, nil)
	if err != nil {
		return &ProvisioningError{Stage: StageCreating, Database: dbName, Err: err}
	}
	// 412 means the database already exists, which is fine.
	if status != http.StatusCreated && status != http.StatusPreconditionFailed {
		return &ProvisioningError{
			Stage:    StageCreating,
			Database: dbName,
			Err:      errors.Errorf("unexpected status %d", status),
		}
	}
	return nil
}

func (p *Provisioner) secureDatabase(ctx context.Context, dbName, identity string) error {
	doc := securityDoc{
		Admins:  securityRoles{Names: []string{}, Roles: []string{}},
		Members: securityRoles{Names: []string{identity}, Roles: []string{}},
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return &ProvisioningError{Stage: StageSecuring, Database: dbName, Err: err}
	}

	status, err := p.do(ctx, http.MethodPut, dbName+"/_security", body)
	if err != nil {
		return &ProvisioningError{Stage: StageSecuring, Database: dbName, Err: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &ProvisioningError{
			Stage:    StageSecuring,
			Database: dbName,
			Err:      errors.Errorf("unexpected status %d", status),
		}
	}
	return nil
}

// Ping checks connectivity and admin access against the backend.
func (p *Provisioner) Ping(ctx context.Context) error {
	status, err := p.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return errors.Wrap(err, "[Provisioner.Ping] backend unreachable")
	}
	if status != http.StatusOK {
		return errors.Errorf("[Provisioner.Ping] unexpected status %d", status)
	}
	return nil
}

func (p *Provisioner) do(ctx context.Context, method, path string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "[Provisioner.do] http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.adminUser != "" {
		req.SetBasicAuth(p.adminUser, p.adminPass)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "[Provisioner.do] client.Do")
	}
	defer res.Body.Close()
	return res.StatusCode, nil
}
