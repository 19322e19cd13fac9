package relational

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/archokshi/optiinfra/internal/core"
)

// CredentialCipher encrypts/decrypts cloud_credentials.encrypted_secret with
// a process-level ChaCha20-Poly1305 key, per spec.md §4.4 ("credentials are
// encrypted at rest with a key supplied to the process, never persisted
// alongside the ciphertext").
type CredentialCipher struct {
	aead cipher.AEAD
}

// NewCredentialCipher builds a CredentialCipher from a 32-byte key.
func NewCredentialCipher(key []byte) (*CredentialCipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, core.New(core.KindValidation, "relational", "build chacha20poly1305 aead", err)
	}
	return &CredentialCipher{aead: aead}, nil
}

func (c *CredentialCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, core.New(core.KindFatal, "relational", "generate nonce", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *CredentialCipher) open(ciphertext []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, core.New(core.KindValidation, "relational", "ciphertext too short", nil)
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, core.New(core.KindFatal, "relational", "decrypt credential secret", err)
	}
	return plaintext, nil
}

// Credential is a decrypted row of cloud_credentials.
type Credential struct {
	ID             string
	CustomerID     string
	Provider       string
	CredentialName string
	Secret         map[string]string
	Metadata       map[string]string
	Version        int
	IsVerified     bool
}

// CredentialStore is the relational Store scoped to cloud_credentials,
// carrying the cipher every accessor needs.
type CredentialStore struct {
	store  *Store
	cipher *CredentialCipher
}

// Credentials returns a CredentialStore bound to s, encrypting and
// decrypting secrets with cipher.
func (s *Store) Credentials(cipher *CredentialCipher) *CredentialStore {
	return &CredentialStore{store: s, cipher: cipher}
}

// Create inserts version 1 of a credential.
func (cs *CredentialStore) Create(ctx context.Context, id, customerID, provider, name string, secret, metadata map[string]string) error {
	secretJSON, err := json.Marshal(secret)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal credential secret", err)
	}
	sealed, err := cs.cipher.seal(secretJSON)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal credential metadata", err)
	}
	_, err = cs.store.Pool.Exec(ctx, `
        INSERT INTO cloud_credentials (id, customer_id, provider, credential_name, encrypted_secret, metadata, version)
        VALUES ($1, $2, $3, $4, $5, $6, 1)`,
		id, customerID, provider, name, sealed, metadataJSON)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "create credential", err)
	}
	return nil
}

// Rotate inserts a new version of an existing (customer, provider, name)
// credential, per spec.md §4.4's versioned-rotation requirement — old
// versions are retained for audit, never overwritten in place.
func (cs *CredentialStore) Rotate(ctx context.Context, newID, customerID, provider, name string, secret, metadata map[string]string) error {
	var currentVersion int
	err := cs.store.Pool.QueryRow(ctx, `
        SELECT COALESCE(MAX(version), 0) FROM cloud_credentials
        WHERE customer_id = $1 AND provider = $2 AND credential_name = $3`,
		customerID, provider, name).Scan(&currentVersion)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "resolve current credential version", err)
	}

	secretJSON, err := json.Marshal(secret)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal credential secret", err)
	}
	sealed, err := cs.cipher.seal(secretJSON)
	if err != nil {
		return err
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return core.New(core.KindValidation, "relational", "marshal credential metadata", err)
	}
	_, err = cs.store.Pool.Exec(ctx, `
        INSERT INTO cloud_credentials (id, customer_id, provider, credential_name, encrypted_secret, metadata, version)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		newID, customerID, provider, name, sealed, metadataJSON, currentVersion+1)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "rotate credential", err)
	}
	return nil
}

// SoftDelete marks the credential row with the given id (one version)
// deleted without removing audit history.
func (cs *CredentialStore) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	tag, err := cs.store.Pool.Exec(ctx, `
        UPDATE cloud_credentials SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, deletedAt)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "soft delete credential", err)
	}
	if tag.RowsAffected() == 0 {
		return core.New(core.KindNotFound, "relational", "credential not found or already deleted", nil)
	}
	return nil
}

// MarkVerified flips is_verified after a caller successfully exercises the
// credential against the provider (spec.md §4.4's verification step).
func (cs *CredentialStore) MarkVerified(ctx context.Context, id string, verified bool) error {
	_, err := cs.store.Pool.Exec(ctx, `UPDATE cloud_credentials SET is_verified = $2 WHERE id = $1`, id, verified)
	if err != nil {
		return core.New(core.KindUnavailable, "relational", "mark credential verified", err)
	}
	return nil
}

// latestVersionOnly restricts a cloud_credentials query to each
// (customer_id, provider, credential_name) triple's highest non-deleted
// version, so a rotated credential's superseded rows never surface
// alongside its replacement (spec.md §4.4's versioned-rotation requirement
// implies only the current version is ever active or listed).
const latestVersionOnly = `version = (
            SELECT MAX(version) FROM cloud_credentials c2
            WHERE c2.customer_id = cloud_credentials.customer_id
              AND c2.provider = cloud_credentials.provider
              AND c2.credential_name = cloud_credentials.credential_name
              AND c2.deleted_at IS NULL
        )`

// Get fetches and decrypts the non-deleted credential row with the given id
// (whichever version that row is).
func (cs *CredentialStore) Get(ctx context.Context, id string) (*Credential, error) {
	var c Credential
	var sealed []byte
	var metadataJSON []byte
	err := cs.store.Pool.QueryRow(ctx, `
        SELECT id, customer_id, provider, credential_name, encrypted_secret, metadata, version, is_verified
        FROM cloud_credentials WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&c.ID, &c.CustomerID, &c.Provider, &c.CredentialName, &sealed, &metadataJSON, &c.Version, &c.IsVerified)
	if err != nil {
		return nil, core.New(core.KindNotFound, "relational", "credential not found", err)
	}

	plaintext, err := cs.cipher.open(sealed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plaintext, &c.Secret); err != nil {
		return nil, core.New(core.KindFatal, "relational", "unmarshal decrypted secret", err)
	}
	if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
		return nil, core.New(core.KindFatal, "relational", "unmarshal credential metadata", err)
	}
	return &c, nil
}

// ListAllActive returns every non-deleted, verified credential across every
// customer (one row per (customer, provider, credential_name), always its
// latest version), used by the scheduler to discover what (customer,
// provider) pairs are due for collection without needing a separate
// subscription table (spec.md §4.3).
func (cs *CredentialStore) ListAllActive(ctx context.Context) ([]Credential, error) {
	rows, err := cs.store.Pool.Query(ctx, `
        SELECT id, customer_id, provider, credential_name, encrypted_secret, metadata, version, is_verified
        FROM cloud_credentials WHERE deleted_at IS NULL AND is_verified = true AND `+latestVersionOnly+`
        ORDER BY customer_id, provider`)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "relational", "list active credentials", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		var sealed []byte
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Provider, &c.CredentialName, &sealed, &metadataJSON, &c.Version, &c.IsVerified); err != nil {
			return nil, core.New(core.KindUnavailable, "relational", "scan active credential row", err)
		}
		plaintext, err := cs.cipher.open(sealed)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plaintext, &c.Secret); err != nil {
			return nil, core.New(core.KindFatal, "relational", "unmarshal decrypted secret", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, core.New(core.KindFatal, "relational", "unmarshal credential metadata", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// ListAllUnverified returns every non-deleted, not-yet-verified credential
// across every customer, so a caller can run a round-trip probe against
// each before it becomes eligible for ListAllActive (spec.md §4.4).
func (cs *CredentialStore) ListAllUnverified(ctx context.Context) ([]Credential, error) {
	rows, err := cs.store.Pool.Query(ctx, `
        SELECT id, customer_id, provider, credential_name, encrypted_secret, metadata, version, is_verified
        FROM cloud_credentials WHERE deleted_at IS NULL AND is_verified = false AND `+latestVersionOnly+`
        ORDER BY customer_id, provider`)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "relational", "list unverified credentials", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		var sealed []byte
		var metadataJSON []byte
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Provider, &c.CredentialName, &sealed, &metadataJSON, &c.Version, &c.IsVerified); err != nil {
			return nil, core.New(core.KindUnavailable, "relational", "scan unverified credential row", err)
		}
		plaintext, err := cs.cipher.open(sealed)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plaintext, &c.Secret); err != nil {
			return nil, core.New(core.KindFatal, "relational", "unmarshal decrypted secret", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, core.New(core.KindFatal, "relational", "unmarshal credential metadata", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// ListByCustomer returns each of a customer's (provider, credential_name)
// credentials at its latest non-deleted version, without decrypting secrets
// (used by list/status endpoints and by the verified-credential lookup on
// every on-demand collection trigger, neither of which should ever see a
// version a Rotate call has since superseded).
func (cs *CredentialStore) ListByCustomer(ctx context.Context, customerID string) ([]Credential, error) {
	rows, err := cs.store.Pool.Query(ctx, `
        SELECT id, customer_id, provider, credential_name, version, is_verified
        FROM cloud_credentials WHERE customer_id = $1 AND deleted_at IS NULL AND `+latestVersionOnly+`
        ORDER BY provider, credential_name`, customerID)
	if err != nil {
		return nil, core.New(core.KindUnavailable, "relational", "list credentials", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.CustomerID, &c.Provider, &c.CredentialName, &c.Version, &c.IsVerified); err != nil {
			return nil, core.New(core.KindUnavailable, "relational", "scan credential row", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
